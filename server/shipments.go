package server

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ShipmentState is the delivery lifecycle position of a shipment. States
// only ever advance one step at a time.
type ShipmentState int

const (
	StateReady ShipmentState = iota
	StateAccepted
	StateCollected
	StateDelivered
)

func (s ShipmentState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateAccepted:
		return "ACCEPTED"
	case StateCollected:
		return "COLLECTED"
	case StateDelivered:
		return "DELIVERED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrShipmentNotFound   = errors.New("shipment not found")
	ErrInvalidTransition  = errors.New("invalid shipment state transition")
	ErrUnknownState       = errors.New("unknown shipment state")
	errNoActiveShipment   = errors.New("no active shipment")
	errNothingToPickUp    = errors.New("no shipment ready for pickup")
	shipmentTTL           = 2 * time.Hour
	shipmentSweepInterval = 2 * time.Minute
)

// Shipment is a fake delivery job generated around the driver's position.
type Shipment struct {
	ID           string        `json:"id"`
	Description  string        `json:"description"`
	Gratuity     float64       `json:"gratuity"`
	PickupName   string        `json:"pickupName"`
	PickupLat    float64       `json:"pickupLatitude"`
	PickupLng    float64       `json:"pickupLongitude"`
	DeliveryName string        `json:"deliveryName"`
	DeliveryLat  float64       `json:"deliveryLatitude"`
	DeliveryLng  float64       `json:"deliveryLongitude"`
	State        ShipmentState `json:"state"`
}

type shipmentEntry struct {
	shipment Shipment
	added    time.Time
}

// ShipmentStore is the in-memory demo model. Entries expire two hours after
// creation, swept at most every two minutes on access; the store holds no
// goroutines of its own.
type ShipmentStore struct {
	mu        sync.Mutex
	entries   map[string]*shipmentEntry
	lastSweep time.Time
	nowFn     func() time.Time
	rng       *rand.Rand
}

func NewShipmentStore(nowFn func() time.Time) *ShipmentStore {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &ShipmentStore{
		entries: make(map[string]*shipmentEntry),
		nowFn:   nowFn,
		rng:     rand.New(rand.NewSource(nowFn().UnixNano())),
	}
}

var pickupNames = []string{
	"Hot Dogs R Us", "Burgers-2-Go", "Wrap and Roll", "Pizza Palace", "Noodle Nation",
}

var deliveryNames = []string{
	"Order 17 Hill Street", "Order 3 Dock Lane", "Order 92 Forth Avenue", "Order 8 Quay Road",
}

// NearestTo returns the READY shipment closest to the driver, generating a
// fresh batch near the driver's position when none is available.
func (s *ShipmentStore) NearestTo(lat, lng float64) Shipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	if nearest, err := s.nearestReadyLocked(lat, lng); err == nil {
		return nearest
	}

	for i := 0; i < 3; i++ {
		s.generateLocked(lat, lng)
	}
	nearest, _ := s.nearestReadyLocked(lat, lng)
	return nearest
}

func (s *ShipmentStore) nearestReadyLocked(lat, lng float64) (Shipment, error) {
	var best *shipmentEntry
	bestDist := math.MaxFloat64
	for _, entry := range s.entries {
		if entry.shipment.State != StateReady {
			continue
		}
		d := squaredDistance(lat, lng, entry.shipment.PickupLat, entry.shipment.PickupLng)
		if d < bestDist {
			best = entry
			bestDist = d
		}
	}
	if best == nil {
		return Shipment{}, errNothingToPickUp
	}
	return best.shipment, nil
}

func (s *ShipmentStore) generateLocked(lat, lng float64) {
	jitter := func() float64 { return (s.rng.Float64() - 0.5) / 20 }
	shipment := Shipment{
		ID:           uuid.NewString(),
		Description:  fmt.Sprintf("Shipment #%04d", s.rng.Intn(10000)),
		Gratuity:     float64(s.rng.Intn(30)),
		PickupName:   pickupNames[s.rng.Intn(len(pickupNames))],
		PickupLat:    lat + jitter(),
		PickupLng:    lng + jitter(),
		DeliveryName: deliveryNames[s.rng.Intn(len(deliveryNames))],
		DeliveryLat:  lat + jitter(),
		DeliveryLng:  lng + jitter(),
		State:        StateReady,
	}
	s.entries[shipment.ID] = &shipmentEntry{shipment: shipment, added: s.nowFn()}
}

// Get returns the shipment with the given id.
func (s *ShipmentStore) Get(id string) (Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	entry, ok := s.entries[id]
	if !ok {
		return Shipment{}, ErrShipmentNotFound
	}
	return entry.shipment, nil
}

// Active returns the driver's in-flight shipment: accepted or collected but
// not yet delivered.
func (s *ShipmentStore) Active() (Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	for _, entry := range s.entries {
		if entry.shipment.State == StateAccepted || entry.shipment.State == StateCollected {
			return entry.shipment, nil
		}
	}
	return Shipment{}, errNoActiveShipment
}

// Delivered lists completed shipments.
func (s *ShipmentStore) Delivered() []Shipment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	var delivered []Shipment
	for _, entry := range s.entries {
		if entry.shipment.State == StateDelivered {
			delivered = append(delivered, entry.shipment)
		}
	}
	return delivered
}

// UpdateState advances a shipment exactly one lifecycle step.
func (s *ShipmentStore) UpdateState(id string, next ShipmentState) (Shipment, error) {
	if next < StateReady || next > StateDelivered {
		return Shipment{}, ErrUnknownState
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	entry, ok := s.entries[id]
	if !ok {
		return Shipment{}, ErrShipmentNotFound
	}
	if next != entry.shipment.State+1 {
		return Shipment{}, fmt.Errorf("%w: %s to %s",
			ErrInvalidTransition, entry.shipment.State, next)
	}
	entry.shipment.State = next
	return entry.shipment, nil
}

func (s *ShipmentStore) sweepLocked() {
	now := s.nowFn()
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < shipmentSweepInterval {
		return
	}
	s.lastSweep = now
	cutoff := now.Add(-shipmentTTL)
	for id, entry := range s.entries {
		if entry.added.Before(cutoff) {
			delete(s.entries, id)
		}
	}
}

func squaredDistance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := lat1 - lat2
	dLng := lng1 - lng2
	return dLat*dLat + dLng*dLng
}
