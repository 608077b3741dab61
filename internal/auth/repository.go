package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrDeviceNotFound is returned when a device is not registered.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceRepository defines the interface for device storage.
type DeviceRepository interface {
	// FindByInstallID finds a device by its install id.
	FindByInstallID(ctx context.Context, installID string) (*Device, error)

	// Create registers a new device.
	Create(ctx context.Context, device *Device) error

	// Touch records that a device registered again.
	Touch(ctx context.Context, id string, at time.Time) error
}

// InMemoryDeviceRepository is an in-memory implementation of DeviceRepository.
type InMemoryDeviceRepository struct {
	mu        sync.RWMutex
	devices   map[string]*Device // keyed by device ID
	byInstall map[string]string  // installID -> deviceID
}

// NewInMemoryDeviceRepository creates a new in-memory device repository.
func NewInMemoryDeviceRepository() *InMemoryDeviceRepository {
	return &InMemoryDeviceRepository{
		devices:   make(map[string]*Device),
		byInstall: make(map[string]string),
	}
}

// FindByInstallID finds a device by its install id.
func (r *InMemoryDeviceRepository) FindByInstallID(_ context.Context, installID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byInstall[installID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	cp := *d
	return &cp, nil
}

// Create registers a new device.
func (r *InMemoryDeviceRepository) Create(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *device
	r.devices[device.ID] = &cp
	r.byInstall[device.InstallID] = device.ID
	return nil
}

// Touch records that a device registered again.
func (r *InMemoryDeviceRepository) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.LastSeenAt = at
	return nil
}

// Ensure InMemoryDeviceRepository implements DeviceRepository interface.
var _ DeviceRepository = (*InMemoryDeviceRepository)(nil)
