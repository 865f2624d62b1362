// Package api exposes the synchronous recognize endpoint and the pipeline
// stats over HTTP.
package api

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"

	"github.com/krishnanrx/parkwise/internal/pipeline"
	"github.com/krishnanrx/parkwise/internal/plate"
)

type recognizeRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
}

type recognizeResponse struct {
	Records []plate.Record `json:"records"`
}

// NewRouter wires the HTTP surface. staticDir may be empty to skip the demo
// page.
func NewRouter(svc *RecognizeService, stats *pipeline.Stats, staticDir string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if staticDir != "" {
		r.Use(static.Serve("/", static.LocalFile(staticDir, false)))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/recognize", recognizeHandler(svc))
		v1.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, stats.Snapshot())
		})
	}
	return r
}

// recognizeHandler accepts either a JSON body with a base64 image or the raw
// image bytes as the request body.
func recognizeHandler(svc *RecognizeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		imageBytes, err := readImage(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		records, err := svc.Recognize(imageBytes)
		if err != nil {
			if errors.Is(err, ErrBadImage) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if records == nil {
			records = []plate.Record{}
		}
		c.JSON(http.StatusOK, recognizeResponse{Records: records})
	}
}

func readImage(c *gin.Context) ([]byte, error) {
	if c.ContentType() == "application/json" {
		var req recognizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			return nil, errors.New("image_base64 is not valid base64")
		}
		if len(data) == 0 {
			return nil, errors.New("image_base64 is empty")
		}
		return data, nil
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("request body is empty")
	}
	return data, nil
}
