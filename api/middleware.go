package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/EliorMigdal/kaplat-ex7/logging"
)

// RequestMiddleware numbers every request, logs it on logger and traces it.
// The number is stored in the request context for downstream log lines.
func RequestMiddleware(logger *log.Logger, counter *RequestCounter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			n := counter.Next()
			ctx := logging.WithRequest(req.Context(), n)

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
				req.Header.Set(echo.HeaderXRequestID, requestID)
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			metrics, ctx := newRequestMetrics(ctx, logger, c.Path(), req.Method)
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsContextKey, metrics)

			logging.Entry(ctx, logger).Infof("Incoming request | #%d | resource: %s | HTTP Verb %s", n, req.URL.Path, req.Method)

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			metrics.Log(c.Response().Status, err)
			return nil
		}
	}
}

// setErrorStage tags the current request span with the stage that failed.
func setErrorStage(c echo.Context, stage string) {
	if m, ok := c.Get(metricsContextKey).(*requestMetrics); ok {
		m.SetErrorStage(stage)
	}
}

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers
// can decode plain JSON. Invalid gzip payloads get the usual bad request
// envelope.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				setErrorStage(c, "decode_body")
				return c.JSON(http.StatusBadRequest, badRequest)
			}

			req.Body = &gzipReadCloser{Reader: gr, body: body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
