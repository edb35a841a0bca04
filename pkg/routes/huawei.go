package routes

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/landslide-monitor/pipeline/pkg/services"
	"github.com/sirupsen/logrus"
)

// NewHuaweiAdapterRoutes mounts the vendor ingress endpoints. The adapter
// speaks the vendor's dialect on the outside and publishes canonical
// telemetry records on the inside.
func NewHuaweiAdapterRoutes(logger *logrus.Entry, parentRouterGroup *gin.RouterGroup, svc services.HuaweiAdapterService, authToken string) {
	handler := func(ctx *gin.Context) {
		traceID := RequestTraceID(ctx)

		if authToken != "" {
			token := strings.TrimSpace(ctx.GetHeader("x-iot-token"))
			if token == "" {
				ctx.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing x-iot-token", "traceId": traceID})
				return
			}
			if token != authToken {
				ctx.JSON(http.StatusForbidden, gin.H{"success": false, "message": "invalid token", "traceId": traceID})
				return
			}
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body", "traceId": traceID})
			return
		}

		if err := svc.IngestVendorTelemetry(ctx.Request.Context(), body); err != nil {
			var rejected *services.VendorRejectedError
			if errors.As(err, &rejected) {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": rejected.Message, "traceId": traceID})
				return
			}

			ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "telemetry mapping invalid", "traceId": traceID})
			return
		}

		ctx.JSON(http.StatusOK, gin.H{"success": true, "traceId": traceID})
	}

	router := parentRouterGroup.Group("/iot")
	router.POST("/huawei/telemetry", handler)
	// Legacy-compatible endpoint kept for devices still pointed at the old path.
	router.POST("/huawei", handler)
}
