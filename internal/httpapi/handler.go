package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dockv/dockv/internal/archive"
	"github.com/dockv/dockv/internal/docstore"
	"github.com/dockv/dockv/internal/kv"
)

// Note is the document type the HTTP service stores.
type Note struct {
	docstore.Meta
	Name    string `json:"name,omitzero"`
	Content string `json:"content,omitzero"`
}

func (n *Note) DocumentType() string { return "note" }

// Repo is the repository instantiation the handlers run against.
type Repo = docstore.Repository[Note, *Note]

func noteJSON(n *Note) gin.H {
	return gin.H{
		"key":        n.Key,
		"doc_type":   n.DocumentType(),
		"name":       n.Name,
		"content":    n.Content,
		"created_at": n.CreatedAt,
		"updated_at": n.UpdatedAt,
		"version":    n.Version,
		"cas":        strconv.FormatUint(n.CAS, 10),
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, kv.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, kv.ErrKeyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "key already exists"})
	case errors.Is(err, kv.ErrCASMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "cas mismatch"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// RegisterRoutes wires the document API onto the engine. arch may be nil
// when object storage is not configured; the archive endpoint then responds
// 503.
func RegisterRoutes(r gin.IRoutes, repo *Repo, arch *archive.Store) {
	r.POST("/api/documents", func(c *gin.Context) {
		var req struct {
			Key     string `json:"key" binding:"required"`
			Name    string `json:"name"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n := &Note{Name: req.Name, Content: req.Content}
		n.Key = req.Key
		n, err := repo.Create(c.Request.Context(), n)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, noteJSON(n))
	})

	r.GET("/api/documents/:key", func(c *gin.Context) {
		n, found, err := repo.Get(c.Request.Context(), c.Param("key"))
		if err != nil {
			writeError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, noteJSON(n))
	})

	// batched raw read: ?keys=a,b,c
	r.GET("/api/documents", func(c *gin.Context) {
		keys := strings.Split(c.Query("keys"), ",")
		if len(keys) == 1 && keys[0] == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "keys query parameter required"})
			return
		}
		raw, err := repo.GetMulti(c.Request.Context(), keys)
		if err != nil {
			writeError(c, err)
			return
		}
		out := make(map[string]json.RawMessage, len(raw))
		for k, v := range raw {
			out[k] = json.RawMessage(v)
		}
		c.JSON(http.StatusOK, out)
	})

	r.PUT("/api/documents/:key", func(c *gin.Context) {
		var req struct {
			Name    string `json:"name"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n := &Note{Name: req.Name, Content: req.Content}
		n.Key = c.Param("key")
		n, err := repo.Save(c.Request.Context(), n)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, noteJSON(n))
	})

	// PATCH applies partial edits with the optimistic-retry loop, so a
	// concurrent writer never causes a lost update or a client-visible 409.
	r.PATCH("/api/documents/:key", func(c *gin.Context) {
		var req struct {
			Name    *string `json:"name,omitempty"`
			Content *string `json:"content,omitempty"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n := &Note{}
		n.Key = c.Param("key")
		if req.Name != nil {
			n.Name = *req.Name
		}
		if req.Content != nil {
			n.Content = *req.Content
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		n, err := repo.UpdateWithRetry(ctx, n, func(cur *Note) {
			if req.Name != nil {
				cur.Name = *req.Name
			}
			if req.Content != nil {
				cur.Content = *req.Content
			}
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, noteJSON(n))
	})

	r.DELETE("/api/documents/:key", func(c *gin.Context) {
		var cas uint64
		if q := c.Query("cas"); q != "" {
			v, err := strconv.ParseUint(q, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cas"})
				return
			}
			cas = v
		}
		ok, err := repo.Remove(c.Request.Context(), c.Param("key"), cas)
		if err != nil {
			writeError(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusConflict, gin.H{"error": "document not removed"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.POST("/api/counters/:key/increment", func(c *gin.Context) {
		var req struct {
			Delta   int64 `json:"delta"`
			Default int64 `json:"default"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Delta == 0 {
			req.Delta = 1
		}
		v, err := repo.Increment(c.Request.Context(), c.Param("key"), req.Delta, req.Default)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": v})
	})

	r.POST("/api/counters/:key/decrement", func(c *gin.Context) {
		var req struct {
			Delta int64 `json:"delta"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Delta == 0 {
			req.Delta = 1
		}
		v, err := repo.Decrement(c.Request.Context(), c.Param("key"), req.Delta)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": v})
	})

	r.POST("/api/documents/:key/archive", func(c *gin.Context) {
		if arch == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "archive storage not configured"})
			return
		}
		key := c.Param("key")
		n, found, err := repo.Get(c.Request.Context(), key)
		if err != nil {
			writeError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		payload, err := json.Marshal(n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		name, err := arch.PutSnapshot(c.Request.Context(), key, n.Version, payload)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		url, err := arch.PresignedURL(c.Request.Context(), name, 15*time.Minute)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"object": name, "url": url, "version": n.Version})
	})
}
