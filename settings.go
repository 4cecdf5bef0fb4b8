package main

import (
	"errors"
	"log"
	"net/http"

	"meterscan/pkg/keystore"
	"meterscan/pkg/ocr"

	"github.com/gin-gonic/gin"
)

func listKeysHandler(c *gin.Context) {
	names, err := keys.Names()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "keystore unavailable"})
		return
	}
	out := make([]gin.H, 0, len(names))
	for _, n := range names {
		v, err := keys.Get(n)
		if err != nil {
			continue
		}
		out = append(out, gin.H{"name": n, "value": ocr.RedactKey(v)})
	}
	c.JSON(http.StatusOK, out)
}

func putKeyHandler(c *gin.Context) {
	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := c.Param("name")
	if err := keys.Set(name, req.Value); err != nil {
		if errors.Is(err, keystore.ErrEmptyName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "keystore write failed"})
		return
	}
	engines.reset(name)
	log.Printf("SETTINGS key %s set to %s by %s", name, ocr.RedactKey(req.Value), c.GetString("username"))
	c.JSON(http.StatusOK, gin.H{"name": name, "value": ocr.RedactKey(req.Value)})
}

func deleteKeyHandler(c *gin.Context) {
	name := c.Param("name")
	if err := keys.Delete(name); err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "keystore write failed"})
		return
	}
	engines.reset(name)
	log.Printf("SETTINGS key %s deleted by %s", name, c.GetString("username"))
	c.JSON(http.StatusOK, gin.H{"message": "key deleted"})
}
