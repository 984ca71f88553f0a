// Package server exposes one opened model over HTTP.
package server

import (
	"bytes"
	"context"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/singleshot/internal/errdefs"
	"github.com/born-ml/singleshot/internal/tensor"
)

// Content types of POST /api/invoke.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// DefaultMaxBodyBytes bounds request bodies unless New is given another limit.
const DefaultMaxBodyBytes int64 = 64 << 20

// maxTimeoutMS is the largest timeout_ms that fits a time.Duration.
const maxTimeoutMS = math.MaxInt64 / int64(time.Millisecond)

// Shot is the model the server drives. *single.Shot implements it.
type Shot interface {
	Backend() string
	Timeout() time.Duration
	InputInfo() (*tensor.Info, error)
	OutputInfo() (*tensor.Info, error)
	SetInputInfo(info *tensor.Info) error
	SetTimeout(d time.Duration) error
	Invoke(in *tensor.Data) (*tensor.Data, error)
}

// Server serves a Shot.
type Server struct {
	shot Shot
	log  logr.Logger

	// MaxBodyBytes bounds every request body.
	MaxBodyBytes int64
}

// New returns a server for shot.
func New(shot Shot, log logr.Logger) *Server {
	return &Server{shot: shot, log: log.WithName("server"), MaxBodyBytes: DefaultMaxBodyBytes}
}

// InfoResponse is the body of GET /api/info and PUT /api/input.
type InfoResponse struct {
	Backend   string       `json:"backend"`
	Input     *tensor.Info `json:"input"`
	Output    *tensor.Info `json:"output"`
	TimeoutMS int64        `json:"timeout_ms"`
}

// TimeoutRequest is the body of PUT /api/timeout.
type TimeoutRequest struct {
	TimeoutMS *int64 `json:"timeout_ms"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), s.requestID(), s.limitBody())

	r.GET("/api/info", s.InfoHandler)
	r.POST("/api/invoke", s.InvokeHandler)
	r.PUT("/api/input", s.InputHandler)
	r.PUT("/api/timeout", s.TimeoutHandler)
	return r
}

// Serve handles connections on ln until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("listening", "addr", ln.Addr().String(), "backend", s.shot.Backend())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()
		s.log.Info("request",
			"id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && s.MaxBodyBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxBodyBytes)
		}
		c.Next()
	}
}

// StatusOf maps an error kind to an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, errdefs.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errdefs.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(err, "request failed", "id", c.Writer.Header().Get(RequestIDHeader), "kind", errdefs.Kind(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func (s *Server) info() (InfoResponse, error) {
	in, err := s.shot.InputInfo()
	if err != nil {
		return InfoResponse{}, err
	}
	out, err := s.shot.OutputInfo()
	if err != nil {
		return InfoResponse{}, err
	}
	return InfoResponse{
		Backend:   s.shot.Backend(),
		Input:     in,
		Output:    out,
		TimeoutMS: s.shot.Timeout().Milliseconds(),
	}, nil
}

// InfoHandler serves GET /api/info.
func (s *Server) InfoHandler(c *gin.Context) {
	resp, err := s.info()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func body(c *gin.Context) ([]byte, error) {
	b, err := c.GetRawData()
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return nil, errdefs.InvalidArgument("request body exceeds %d bytes", mbe.Limit)
	}
	if err != nil {
		return nil, errdefs.InvalidArgument("read body: %v", err)
	}
	if len(b) == 0 {
		return nil, errdefs.InvalidArgument("missing request body")
	}
	return b, nil
}

// InvokeHandler serves POST /api/invoke. The response uses the encoding
// of the request.
func (s *Server) InvokeHandler(c *gin.Context) {
	b, err := body(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	msgpack := c.ContentType() == ContentTypeMsgpack
	var in *tensor.Data
	if msgpack {
		in, err = tensor.DecodeData(bytes.NewReader(b))
	} else {
		in = &tensor.Data{}
		err = in.UnmarshalJSON(b)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	out, err := s.shot.Invoke(in)
	if err != nil {
		s.fail(c, err)
		return
	}

	if !msgpack {
		c.JSON(http.StatusOK, out)
		return
	}
	var buf bytes.Buffer
	if err := tensor.EncodeData(&buf, out); err != nil {
		s.fail(c, errdefs.Backend(err))
		return
	}
	c.Data(http.StatusOK, ContentTypeMsgpack, buf.Bytes())
}

// InputHandler serves PUT /api/input.
func (s *Server) InputHandler(c *gin.Context) {
	b, err := body(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	info := &tensor.Info{}
	if err := info.UnmarshalJSON(b); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.shot.SetInputInfo(info); err != nil {
		s.fail(c, err)
		return
	}
	s.InfoHandler(c)
}

// TimeoutHandler serves PUT /api/timeout.
func (s *Server) TimeoutHandler(c *gin.Context) {
	var req TimeoutRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		s.fail(c, errdefs.InvalidArgument("missing request body"))
		return
	} else if err != nil {
		s.fail(c, errdefs.InvalidArgument("%v", err))
		return
	}
	if req.TimeoutMS == nil {
		s.fail(c, errdefs.InvalidArgument("timeout_ms is required"))
		return
	}
	if *req.TimeoutMS > maxTimeoutMS {
		s.fail(c, errdefs.InvalidArgument("timeout_ms %d exceeds %d", *req.TimeoutMS, maxTimeoutMS))
		return
	}
	if err := s.shot.SetTimeout(time.Duration(*req.TimeoutMS) * time.Millisecond); err != nil {
		s.fail(c, err)
		return
	}
	s.InfoHandler(c)
}
