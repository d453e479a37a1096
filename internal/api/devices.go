package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camrelay/internal/api/models"
	"github.com/smazurov/camrelay/internal/capture"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "Capture devices with their pixel formats and discrete frame sizes",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.DevicesResponse, error) {
		var listing capture.Listing
		if s.options.Lister != nil {
			listing = s.options.Lister()
		}
		devices := []capture.DeviceListing(listing)
		if devices == nil {
			devices = []capture.DeviceListing{}
		}
		return &models.DevicesResponse{
			Body: models.DevicesData{
				Devices: devices,
				Count:   len(devices),
			},
		}, nil
	})
}
