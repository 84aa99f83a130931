package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"dao-service/core"
)

// Logger logs every request with its duration.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.Infof("%s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

// BlockMetadata attaches the most recently executed block to every response
// as Block-Number and Block-Hash headers.
func BlockMetadata(cache *core.Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if block, err := cache.GetCurrentBlock(r.Context()); err == nil && block != nil {
				w.Header().Set("Block-Number", strconv.FormatInt(block.Number, 10))
				w.Header().Set("Block-Hash", block.Hash)
			}
			next.ServeHTTP(w, r)
		})
	}
}
