package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/usecase"
)

const accessRequestKey = "access_request"

// errTrailingData is reported when a JSON body holds more than one value.
var errTrailingData = errors.New("unexpected data after JSON body")

// AccessOptions configures how a request is presented to the access pipeline.
type AccessOptions struct {
	CookieName string
	Now        func() time.Time
}

// Access runs pipeline before the handler. The evaluated request is available to
// handlers through AccessFrom.
func Access(pipeline *usecase.AccessPipeline, opts AccessOptions) gin.HandlerFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		req := &usecase.AccessRequest{
			Now:          now(),
			ClientIP:     c.ClientIP(),
			SessionToken: sessionToken(c, opts.CookieName),
			Decode: func(dst any) error {
				return DecodeJSON(c.Request.Body, dst)
			},
		}

		err := pipeline.Evaluate(c.Request.Context(), req)
		if req.RateLimit != nil {
			applyRateLimitHeaders(c, *req.RateLimit)
		}
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(accessRequestKey, req)
		c.Next()
	}
}

// AccessFrom returns the request evaluated by Access.
func AccessFrom(c *gin.Context) *usecase.AccessRequest {
	if v, ok := c.Get(accessRequestKey); ok {
		if req, ok := v.(*usecase.AccessRequest); ok {
			return req
		}
	}
	return &usecase.AccessRequest{}
}

func sessionToken(c *gin.Context, cookieName string) string {
	if cookieName == "" {
		return ""
	}
	token, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return token
}

// DecodeJSON decodes exactly one JSON object and rejects unknown fields. A body over
// the configured limit becomes PayloadTooLarge.
func DecodeJSON(body io.Reader, dst any) error {
	if body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return tooLargeOr(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return tooLargeOr(err)
		}
		return errTrailingData
	}
	return nil
}

func tooLargeOr(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return domain.NewPayloadTooLarge("request body too large", err)
	}
	return err
}

func applyRateLimitHeaders(c *gin.Context, res domain.RateLimitResult) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))

	if !res.Allowed {
		seconds := int(math.Ceil(res.RetryAfter.Seconds()))
		headers.Set("Retry-After", strconv.Itoa(max(seconds, 0)))
	}
}
