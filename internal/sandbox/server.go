package sandbox

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Layr-Labs/entity-client/internal/config"
	"github.com/Layr-Labs/entity-client/pkg/entity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxRequestBytes = 8 << 20 // 8 MiB

	ctxBody = "sandbox.body"
)

// Server is a local entity server speaking the signed protocol. It verifies
// every request, rejects replays and optionally encrypts responses.
type Server struct {
	cfg    *config.Config
	signer *entity.Signer
	codec  *entity.PacketCodec
	nonces NonceStore
	store  *Store
	txs    *TxRegistry
	logger *zap.Logger
	now    func() time.Time

	engine *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the server clock used for timestamp checks and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func New(cfg *config.Config, nonces NonceStore, logger *zap.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil sandbox config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if nonces == nil {
		return nil, fmt.Errorf("nil nonce store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	signer, err := entity.NewSigner(cfg.HMACSecret)
	if err != nil {
		return nil, err
	}
	codec, err := entity.NewPacketCodec(cfg.HMACSecret, len(cfg.Magic), cfg.Magic)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		signer: signer,
		codec:  codec,
		nonces: nonces,
		store:  NewStore(),
		txs:    NewTxRegistry(cfg.TransactionTTL),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.store.now = s.now
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Store exposes the backing storage, e.g. for seeding in tests.
func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests())

	v1 := r.Group("/v1", s.authenticate())
	{
		v1.GET("/entity/:entity/*rest", s.handleEntityGet)
		v1.POST("/entity/:entity/*rest", s.handleEntityPost)
		v1.DELETE("/entity/:entity/*rest", s.handleEntityDelete)

		v1.POST("/transaction/start", s.handleTxStart)
		v1.POST("/transaction/commit/:id", s.handleTxCommit)
		v1.POST("/transaction/rollback/:id", s.handleTxRollback)
	}
	r.NoRoute(func(c *gin.Context) {
		s.reject(c, http.StatusNotFound, "route not found")
	})
	return r
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Sugar().Infow("Handled request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// authenticate checks API key, timestamp window, signature and nonce, in that
// order. Nonces are only recorded for correctly signed requests.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey != "" {
			key := c.GetHeader(entity.HeaderAPIKey)
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
				s.reject(c, http.StatusUnauthorized, "invalid api key")
				return
			}
		}

		timestamp := c.GetHeader(entity.HeaderTimestamp)
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			s.reject(c, http.StatusUnauthorized, "invalid timestamp")
			return
		}
		skew := s.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > s.cfg.ReplayWindow {
			s.reject(c, http.StatusUnauthorized, "timestamp outside replay window")
			return
		}

		nonce := c.GetHeader(entity.HeaderNonce)
		if nonce == "" {
			s.reject(c, http.StatusUnauthorized, "missing nonce")
			return
		}

		body, err := readBodyLimited(c.Request.Body, maxRequestBytes)
		if err != nil {
			s.reject(c, http.StatusBadRequest, err.Error())
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Set(ctxBody, body)

		target := c.Request.RequestURI
		if target == "" {
			target = c.Request.URL.RequestURI()
		}
		if !s.signer.Verify(c.Request.Method, target, timestamp, nonce, string(body), c.GetHeader(entity.HeaderSignature)) {
			s.reject(c, http.StatusUnauthorized, "invalid signature")
			return
		}

		fresh, err := s.nonces.Remember(c.Request.Context(), nonce)
		if err != nil {
			s.logger.Sugar().Errorw("Nonce store failure", "error", err)
			s.reject(c, http.StatusInternalServerError, "nonce store unavailable")
			return
		}
		if !fresh {
			s.reject(c, http.StatusUnauthorized, "nonce already used")
			return
		}
		c.Next()
	}
}

func readBodyLimited(r io.Reader, max int64) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > max {
		return nil, fmt.Errorf("body too large (max %d bytes)", max)
	}
	return b, nil
}

func requestBody(c *gin.Context) []byte {
	if v, ok := c.Get(ctxBody); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

// respond writes an authenticated response, encrypted when configured.
func (s *Server) respond(c *gin.Context, status int, payload gin.H) {
	body, err := encodeJSON(payload)
	if err != nil {
		s.logger.Sugar().Errorw("Encode response failed", "error", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if s.cfg.EncryptResponses {
		packet, err := s.codec.Seal(body)
		if err != nil {
			s.logger.Sugar().Errorw("Seal response failed", "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(status, entity.ContentTypePacket, packet)
		return
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

// fail writes an application error after authentication succeeded.
func (s *Server) fail(c *gin.Context, status int, message string) {
	s.respond(c, status, gin.H{"ok": false, "message": message})
	c.Abort()
}

// reject writes a plaintext error. Used before the caller is authenticated,
// because a caller with the wrong secret could not decrypt the answer.
func (s *Server) reject(c *gin.Context, status int, message string) {
	body, _ := encodeJSON(gin.H{"ok": false, "message": message})
	c.Data(status, "application/json; charset=utf-8", body)
	c.Abort()
}

func encodeJSON(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
