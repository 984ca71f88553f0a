// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor describes the tensors exchanged with a single-shot model.
//
// # Overview
//
// An Info is an ordered schema of up to MaxTensors tensors, each with an
// element Type and a four-extent Dimension. Extents are listed innermost
// first and padded with 1, so a 224x224 RGB image is "3:224:224:1".
//
// A Data pairs a copy of an Info with one zeroed buffer per tensor. Buffer
// sizes never change; contents do.
//
// # Basic Usage
//
//	info := &tensor.Info{}
//	if err := info.Add(tensor.Uint8, 3, 224, 224); err != nil {
//	    log.Fatal(err)
//	}
//
//	data, err := info.Allocate()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	buf, _ := data.Tensor(0) // 150528 zero bytes
//	copy(buf, pixels)
//
// # Serialization
//
// Info marshals to JSON and YAML, Data to JSON and msgpack (EncodeData,
// DecodeData). Types and dimensions use their string forms.
package tensor
