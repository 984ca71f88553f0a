package tensor

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/singleshot/internal/errdefs"
)

// entryDoc is the serialized form of one schema entry.
type entryDoc struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Type string `json:"type" yaml:"type"`
	Dim  string `json:"dim" yaml:"dim"`
}

type infoDoc struct {
	Tensors []entryDoc `json:"tensors" yaml:"tensors"`
}

// tensorDoc is the serialized form of one tensor with its contents.
type tensorDoc struct {
	Name string `json:"name,omitempty" msgpack:"name"`
	Type string `json:"type" msgpack:"type"`
	Dim  string `json:"dim" msgpack:"dim"`
	Data []byte `json:"data" msgpack:"data"`
}

type dataDoc struct {
	Tensors []tensorDoc `json:"tensors" msgpack:"tensors"`
}

func (info *Info) doc() infoDoc {
	doc := infoDoc{Tensors: make([]entryDoc, 0, info.Count())}
	for _, e := range info.Entries() {
		doc.Tensors = append(doc.Tensors, entryDoc{Name: e.Name, Type: e.Type.String(), Dim: e.Dim.String()})
	}
	return doc
}

func parseEntry(name, typ, dim string) (Entry, error) {
	t, err := ParseType(typ)
	if err != nil {
		return Entry{}, err
	}
	d, err := ParseDimension(dim)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, Type: t, Dim: d}, nil
}

func (doc infoDoc) info() (*Info, error) {
	info := &Info{}
	for _, e := range doc.Tensors {
		entry, err := parseEntry(e.Name, e.Type, e.Dim)
		if err != nil {
			return nil, err
		}
		if err := info.append(entry); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// MarshalYAML implements yaml.Marshaler.
func (info *Info) MarshalYAML() (interface{}, error) {
	return info.doc(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (info *Info) UnmarshalYAML(value *yaml.Node) error {
	var doc infoDoc
	if err := value.Decode(&doc); err != nil {
		return errdefs.InvalidArgument("decode tensor schema: %v", err)
	}
	parsed, err := doc.info()
	if err != nil {
		return err
	}
	*info = *parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (info *Info) MarshalJSON() ([]byte, error) {
	return json.Marshal(info.doc())
}

// UnmarshalJSON implements json.Unmarshaler.
func (info *Info) UnmarshalJSON(b []byte) error {
	var doc infoDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return errdefs.InvalidArgument("decode tensor schema: %v", err)
	}
	parsed, err := doc.info()
	if err != nil {
		return err
	}
	*info = *parsed
	return nil
}

func (d *Data) doc() dataDoc {
	doc := dataDoc{Tensors: make([]tensorDoc, 0, d.Count())}
	for i, e := range d.info.Entries() {
		doc.Tensors = append(doc.Tensors, tensorDoc{
			Name: e.Name,
			Type: e.Type.String(),
			Dim:  e.Dim.String(),
			Data: d.buffers[i],
		})
	}
	return doc
}

func (doc dataDoc) data() (*Data, error) {
	if len(doc.Tensors) == 0 {
		return nil, errdefs.InvalidArgument("decode tensors: no tensors")
	}
	info := &Info{}
	for i, t := range doc.Tensors {
		entry, err := parseEntry(t.Name, t.Type, t.Dim)
		if err != nil {
			return nil, err
		}
		if err := info.append(entry); err != nil {
			return nil, err
		}
		// Payload lengths are checked before anything is allocated.
		size, err := ByteSize(entry.Type, entry.Dim)
		if err != nil {
			return nil, err
		}
		if len(t.Data) != size {
			return nil, errdefs.InvalidArgument("tensor %d holds %d bytes, %s[%s] needs %d", i, len(t.Data), entry.Type, entry.Dim, size)
		}
	}
	d, err := info.Allocate()
	if err != nil {
		return nil, err
	}
	for i, t := range doc.Tensors {
		if err := d.SetTensor(i, t.Data); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MarshalJSON implements json.Marshaler. Buffers are base64 encoded.
func (d *Data) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.doc())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Data) UnmarshalJSON(b []byte) error {
	var doc dataDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return errdefs.InvalidArgument("decode tensors: %v", err)
	}
	parsed, err := doc.data()
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (d *Data) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(d.doc())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (d *Data) DecodeMsgpack(dec *msgpack.Decoder) error {
	var doc dataDoc
	if err := dec.Decode(&doc); err != nil {
		return errdefs.InvalidArgument("decode tensors: %v", err)
	}
	parsed, err := doc.data()
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// EncodeData writes d to w in msgpack form.
func EncodeData(w io.Writer, d *Data) error {
	if d == nil {
		return errdefs.InvalidArgument("tensor data is nil")
	}
	return errors.Wrap(msgpack.NewEncoder(w).Encode(d), "encode tensors")
}

// DecodeData reads msgpack tensors written by EncodeData.
func DecodeData(r io.Reader) (*Data, error) {
	d := &Data{}
	if err := msgpack.NewDecoder(r).Decode(d); err != nil {
		if errdefs.Kind(err) != "" {
			return nil, err
		}
		return nil, errdefs.InvalidArgument("decode tensors: %v", err)
	}
	return d, nil
}
