// Package fleetstore persists the simulation state shared by every server
// instance: trip plans, vehicle states, the active vehicle registry, the
// update queue and the update lock set.
package fleetstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/OpenTransitTools/fleetsim/business/sim/trip"
	"github.com/OpenTransitTools/fleetsim/business/sim/vehicle"
	"github.com/redis/go-redis/v9"
)

// Logical collection keys. Other processes decode the same layout, so the
// names are part of the wire contract.
const (
	tripPlanKey       = "TripPlan"
	vehicleKeyPrefix  = "Vehicle:"
	activeRegistryKey = "ActiveVehicleRegistry"
	updateQueueKey    = "VehicleUpdateQueue"
	updateLockKey     = "VehicleUpdateLockSet"
)

// ErrNotFound reports a vehicle or trip plan id absent from the store
var ErrNotFound = errors.New("not present in fleet store")

// Config is the required properties to use the fleet store.
type Config struct {
	Host     string
	Password string
	DB       int
}

// Store provides access to the shared fleet collections
type Store struct {
	client *redis.Client
}

// Open knows how to open a fleet store connection based on the configuration.
func Open(cfg Config) *Store {
	return MakeStore(redis.NewClient(&redis.Options{
		Addr:     cfg.Host,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

// MakeStore wraps an established redis client
func MakeStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// StatusCheck verifies the store answers a ping
func (s *Store) StatusCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging fleet store: %w", err)
	}
	return nil
}

// Close releases the underlying connection
func (s *Store) Close() error {
	return s.client.Close()
}

// SaveTripPlan stores plan in the trip plan registry under the vehicle id
func (s *Store) SaveTripPlan(ctx context.Context, id string, plan *trip.Plan) error {
	value, err := encodeValue(typeTripPlan, plan)
	if err != nil {
		return err
	}
	if err = s.client.HSet(ctx, tripPlanKey, id, value).Err(); err != nil {
		return fmt.Errorf("saving trip plan %s: %w", id, err)
	}
	return nil
}

// TripPlan retrieves the trip plan stored under the vehicle id
func (s *Store) TripPlan(ctx context.Context, id string) (*trip.Plan, error) {
	stored, err := s.client.HGet(ctx, tripPlanKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("trip plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading trip plan %s: %w", id, err)
	}
	var plan trip.Plan
	if err = decodeValue(typeTripPlan, stored, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// SaveVehicle writes the authoritative simulation state for state.Id
func (s *Store) SaveVehicle(ctx context.Context, state *vehicle.State) error {
	value, err := encodeValue(typeVehicle, state)
	if err != nil {
		return err
	}
	if err = s.client.Set(ctx, vehicleKey(state.Id), value, 0).Err(); err != nil {
		return fmt.Errorf("saving vehicle %s: %w", state.Id, err)
	}
	return nil
}

// Vehicle retrieves the authoritative simulation state for id
func (s *Store) Vehicle(ctx context.Context, id string) (*vehicle.State, error) {
	stored, err := s.client.Get(ctx, vehicleKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading vehicle %s: %w", id, err)
	}
	var state vehicle.State
	if err = decodeValue(typeVehicle, stored, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// AddActive registers id in the active vehicle registry
func (s *Store) AddActive(ctx context.Context, id string) error {
	if err := s.client.SAdd(ctx, activeRegistryKey, id).Err(); err != nil {
		return fmt.Errorf("adding vehicle %s to active registry: %w", id, err)
	}
	return nil
}

// IsActive reports whether id is in the active vehicle registry
func (s *Store) IsActive(ctx context.Context, id string) (bool, error) {
	active, err := s.client.SIsMember(ctx, activeRegistryKey, id).Result()
	if err != nil {
		return false, fmt.Errorf("checking active registry for %s: %w", id, err)
	}
	return active, nil
}

// ActiveIDs returns every active vehicle id, in no particular order
func (s *Store) ActiveIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, activeRegistryKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing active registry: %w", err)
	}
	return ids, nil
}

// ActiveCount returns the number of active vehicles
func (s *Store) ActiveCount(ctx context.Context) (int64, error) {
	count, err := s.client.SCard(ctx, activeRegistryKey).Result()
	if err != nil {
		return 0, fmt.Errorf("counting active registry: %w", err)
	}
	return count, nil
}

// Enqueue scores id in the update queue by its last calculation timestamp
func (s *Store) Enqueue(ctx context.Context, id string, epochMillis int64) error {
	member := redis.Z{Score: float64(epochMillis), Member: id}
	if err := s.client.ZAdd(ctx, updateQueueKey, member).Err(); err != nil {
		return fmt.Errorf("queueing vehicle %s: %w", id, err)
	}
	return nil
}

// ReadyBefore returns queued ids scored at or below bound, oldest first
func (s *Store) ReadyBefore(ctx context.Context, boundEpochMillis int64) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, updateQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(boundEpochMillis, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("querying update queue: %w", err)
	}
	return ids, nil
}

// QueueScore returns the update queue score recorded for id
func (s *Store) QueueScore(ctx context.Context, id string) (int64, error) {
	score, err := s.client.ZScore(ctx, updateQueueKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("queue entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("reading queue score for %s: %w", id, err)
	}
	return int64(score), nil
}

// TryLock claims the update lock for id, reporting whether this caller won
// it. A false return means another instance is the current writer.
func (s *Store) TryLock(ctx context.Context, id string) (bool, error) {
	added, err := s.client.SAdd(ctx, updateLockKey, id).Result()
	if err != nil {
		return false, fmt.Errorf("locking vehicle %s: %w", id, err)
	}
	return added == 1, nil
}

// Unlock releases the update lock for id
func (s *Store) Unlock(ctx context.Context, id string) error {
	if err := s.client.SRem(ctx, updateLockKey, id).Err(); err != nil {
		return fmt.Errorf("unlocking vehicle %s: %w", id, err)
	}
	return nil
}

// Retire removes every trace of id: the registry and queue entries, any lock,
// the stored state and the trip plan.
func (s *Store) Retire(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, activeRegistryKey, id)
	pipe.ZRem(ctx, updateQueueKey, id)
	pipe.SRem(ctx, updateLockKey, id)
	pipe.Del(ctx, vehicleKey(id))
	pipe.HDel(ctx, tripPlanKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retiring vehicle %s: %w", id, err)
	}
	return nil
}

// Reset deletes all five collections, including every stored vehicle state
func (s *Store) Reset(ctx context.Context) error {
	var vehicleKeys []string
	iter := s.client.Scan(ctx, 0, vehicleKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		vehicleKeys = append(vehicleKeys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning vehicle entries: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tripPlanKey, activeRegistryKey, updateQueueKey, updateLockKey)
	if len(vehicleKeys) > 0 {
		pipe.Del(ctx, vehicleKeys...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resetting fleet store: %w", err)
	}
	return nil
}

func vehicleKey(id string) string {
	return vehicleKeyPrefix + id
}
