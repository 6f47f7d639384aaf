package pilot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/models"
)

// Service is the AI feature surface: anomaly explanation, natural-language
// query, report generation, root cause analysis, and the widget assistant.
// Each feature assembles tenant-scoped telemetry context, delegates to the
// router, and post-processes the model output into a typed result.
type Service struct {
	cfg           Config
	src           Sources
	router        *Router
	sanitizer     *Sanitizer
	pool          *Pool
	conversations *ConversationStore
	logger        *zap.Logger
	now           func() time.Time
}

// NewService wires the feature surface together.
func NewService(cfg Config, src Sources, router *Router, sanitizer *Sanitizer, pool *Pool, conversations *ConversationStore, logger *zap.Logger) *Service {
	return &Service{
		cfg:           cfg,
		src:           src,
		router:        router,
		sanitizer:     sanitizer,
		pool:          pool,
		conversations: conversations,
		logger:        logger,
		now:           time.Now,
	}
}

// resolveDevice loads a device and enforces tenant ownership. Cross-tenant
// access is logged as a security event and reported distinctly from a
// plain miss.
func (s *Service) resolveDevice(ctx context.Context, orgID, deviceID string) (*models.Device, error) {
	var device *models.Device
	err := s.pool.Run(ctx, func() error {
		var err error
		device, err = s.src.Devices.DeviceByID(ctx, deviceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, newNotFoundError("device", deviceID)
	}
	if device.OrganizationID != orgID {
		s.logger.Warn("cross-tenant device access denied",
			zap.String("device_id", deviceID),
			zap.String("requesting_org", orgID),
			zap.String("owning_org", device.OrganizationID))
		return nil, newTenantAccessError("device", deviceID)
	}
	return device, nil
}

// resolveDeviceSet turns an optional explicit device-ID list into a
// tenant-owned device slice. Explicit IDs that do not resolve within the
// organization fail the request; an empty list falls back to all of the
// organization's devices, capped.
func (s *Service) resolveDeviceSet(ctx context.Context, orgID string, ids []string, cap int) ([]models.Device, error) {
	var devices []models.Device
	err := s.pool.Run(ctx, func() error {
		var err error
		if len(ids) > 0 {
			devices, err = s.src.Devices.DevicesByIDs(ctx, orgID, ids)
		} else {
			devices, err = s.src.Devices.DevicesByOrg(ctx, orgID, cap)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 && len(devices) < len(ids) {
		owned := make(map[string]bool, len(devices))
		for _, d := range devices {
			owned[d.ID] = true
		}
		for _, id := range ids {
			if owned[id] {
				continue
			}
			return nil, s.classifyDeviceMiss(ctx, orgID, id)
		}
	}

	if cap > 0 && len(devices) > cap {
		devices = devices[:cap]
	}
	return devices, nil
}

func (s *Service) classifyDeviceMiss(ctx context.Context, orgID, deviceID string) error {
	device, err := s.src.Devices.DeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return newNotFoundError("device", deviceID)
	}
	s.logger.Warn("cross-tenant device access denied",
		zap.String("device_id", deviceID),
		zap.String("requesting_org", orgID),
		zap.String("owning_org", device.OrganizationID))
	return newTenantAccessError("device", deviceID)
}

func (s *Service) temperature(v float64) *float64 {
	return &v
}
