package middleware

import (
	"bytes"
	"compress/gzip"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-docs/types"
	"github.com/saiset-co/sai-docs/utils"
)

const (
	AlgorithmGzip   = "gzip"
	AlgorithmBrotli = "br"
)

type CompressionMiddleware struct {
	config            types.ConfigManager
	logger            types.Logger
	compressionConfig *CompressionConfig
	weight            int
	gzipWriterPool    sync.Pool
	brotliWriterPool  sync.Pool
	bufferPool        sync.Pool
}

type CompressionConfig struct {
	Level        int      `json:"level"`
	MinLength    int      `json:"min_length"`
	AllowedTypes []string `json:"allowed_types"`
}

func NewCompressionMiddleware(config types.ConfigManager, logger types.Logger) *CompressionMiddleware {
	compressionConfig := &CompressionConfig{
		Level:     4,
		MinLength: 1024,
		AllowedTypes: []string{
			"text/*",
			"application/json",
			"application/javascript",
		},
	}

	item := config.GetConfig().Middlewares.Compression
	if item.Params != nil {
		if err := utils.UnmarshalConfig(item.Params, compressionConfig); err != nil && logger != nil {
			logger.Error("Failed to unmarshal Compression middleware config", zap.Error(err))
		}
	}

	cm := &CompressionMiddleware{
		config:            config,
		logger:            logger,
		compressionConfig: compressionConfig,
		weight:            item.Weight,
	}

	cm.gzipWriterPool = sync.Pool{
		New: func() interface{} {
			w, _ := gzip.NewWriterLevel(nil, cm.gzipLevel())
			return w
		},
	}
	cm.brotliWriterPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewWriterLevel(nil, compressionConfig.Level)
		},
	}
	cm.bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}

	return cm
}

func (c *CompressionMiddleware) Name() string { return "Compression" }
func (c *CompressionMiddleware) Weight() int  { return c.weight }

func (c *CompressionMiddleware) gzipLevel() int {
	if c.compressionConfig.Level < gzip.HuffmanOnly || c.compressionConfig.Level > gzip.BestCompression {
		return gzip.DefaultCompression
	}
	return c.compressionConfig.Level
}

func (c *CompressionMiddleware) Handle(ctx *fasthttp.RequestCtx, next func(*fasthttp.RequestCtx), _ *types.RouteConfig) {
	next(ctx)

	if len(ctx.Response.Header.Peek("Content-Encoding")) > 0 {
		return
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.MinLength {
		return
	}

	if !c.shouldCompress(string(ctx.Response.Header.ContentType())) {
		return
	}

	acceptEncoding := string(ctx.Request.Header.Peek("Accept-Encoding"))
	algorithm := c.pickAlgorithm(acceptEncoding)
	if algorithm == "" {
		return
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	var err error
	switch algorithm {
	case AlgorithmBrotli:
		err = c.compressBrotli(buf, body)
	case AlgorithmGzip:
		err = c.compressGzip(buf, body)
	}

	if err != nil {
		if c.logger != nil {
			c.logger.Warn("Response compression failed", zap.Error(err))
		}
		return
	}

	if buf.Len() >= len(body) {
		return
	}

	ctx.Response.Header.Set("Content-Encoding", algorithm)
	ctx.Response.Header.Add("Vary", "Accept-Encoding")
	ctx.Response.Header.Set("Content-Length", strconv.Itoa(buf.Len()))
	ctx.Response.SetBody(append([]byte(nil), buf.Bytes()...))
}

func (c *CompressionMiddleware) pickAlgorithm(acceptEncoding string) string {
	if strings.Contains(acceptEncoding, AlgorithmBrotli) {
		return AlgorithmBrotli
	}
	if strings.Contains(acceptEncoding, AlgorithmGzip) {
		return AlgorithmGzip
	}
	return ""
}

func (c *CompressionMiddleware) shouldCompress(contentType string) bool {
	if contentType == "" {
		return false
	}

	if semicolon := strings.Index(contentType, ";"); semicolon != -1 {
		contentType = contentType[:semicolon]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	for _, allowed := range c.compressionConfig.AllowedTypes {
		if allowed == contentType {
			return true
		}
		if strings.HasSuffix(allowed, "*") && strings.HasPrefix(contentType, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}
	return false
}

func (c *CompressionMiddleware) compressGzip(buf *bytes.Buffer, body []byte) error {
	w := c.gzipWriterPool.Get().(*gzip.Writer)
	defer c.gzipWriterPool.Put(w)

	w.Reset(buf)
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Close()
}

func (c *CompressionMiddleware) compressBrotli(buf *bytes.Buffer, body []byte) error {
	w := c.brotliWriterPool.Get().(*brotli.Writer)
	defer c.brotliWriterPool.Put(w)

	w.Reset(buf)
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Close()
}
