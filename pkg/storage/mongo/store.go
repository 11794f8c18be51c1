// Package mongo implements storage.Store on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/storage"

	"github.com/google/uuid"
)

// Collection name constants.
const (
	colPlans     = "plans"
	colCustomers = "customers"
	colLicenses  = "licenses"
	colUsage     = "usage_logs"
)

// compile-time interface check
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store on a MongoDB database.
//
// Seat-limited allocation keeps a seats_used counter on each plan document.
// A license insert first increments the counter conditionally on it being
// below the limit; the increment is undone if the insert fails, and the
// counter is decremented when a license is cancelled.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB, verifies the connection, and ensures indexes.
func New(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("storage/mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("storage/mongo: ping: %w", err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database)}
	if err := s.Migrate(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("storage/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	err := s.client.Disconnect(context.Background())
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}

// ==================== Plans ====================

func (s *Store) UpsertPlan(ctx context.Context, p *licensing.Plan) error {
	t := now()
	p.UpdatedAt = t

	var existing planDoc
	err := s.db.Collection(colPlans).FindOne(ctx, bson.M{"name": p.Name}).Decode(&existing)
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt.UTC()
		d := toPlanDoc(p)
		_, err = s.db.Collection(colPlans).UpdateOne(ctx, bson.M{"_id": d.ID}, bson.M{"$set": bson.M{
			"display_name":         d.DisplayName,
			"price":                d.Price,
			"currency":             d.Currency,
			"monthly_requests":     d.MonthlyRequestLimit,
			"requests_per_minute":  d.RequestsPerMinute,
			"requests_per_hour":    d.RequestsPerHour,
			"monthly_budget":       d.MonthlyBudget,
			"cost_per_1000_tokens": d.CostPer1KTokens,
			"features":             d.Features,
			"is_lifetime":          d.IsLifetime,
			"lifetime_limit":       d.LifetimeSeatLimit,
			"max_sites":            d.MaxSites,
			"is_active":            d.IsActive,
			"metadata":             d.Metadata,
			"updated_at":           d.UpdatedAt,
		}})
		if err != nil {
			return fmt.Errorf("storage/mongo: update plan: %w", err)
		}
		return nil
	case isNoDocuments(err):
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = t
		}
		if _, err := s.db.Collection(colPlans).InsertOne(ctx, toPlanDoc(p)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				// Lost a race with a concurrent insert of the same name.
				return s.UpsertPlan(ctx, p)
			}
			return fmt.Errorf("storage/mongo: create plan: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("storage/mongo: find plan: %w", err)
	}
}

func (s *Store) getPlan(ctx context.Context, filter bson.M) (*licensing.Plan, error) {
	var d planDoc
	if err := s.db.Collection(colPlans).FindOne(ctx, filter).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return nil, licensing.ErrPlanNotFound
		}
		return nil, fmt.Errorf("storage/mongo: get plan: %w", err)
	}
	return fromPlanDoc(&d), nil
}

func (s *Store) GetPlan(ctx context.Context, id string) (*licensing.Plan, error) {
	return s.getPlan(ctx, bson.M{"_id": id})
}

func (s *Store) GetPlanByName(ctx context.Context, name string) (*licensing.Plan, error) {
	return s.getPlan(ctx, bson.M{"name": name})
}

func (s *Store) ListPlans(ctx context.Context) ([]*licensing.Plan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "price", Value: 1}, {Key: "name", Value: 1}})
	cursor, err := s.db.Collection(colPlans).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("storage/mongo: list plans: %w", err)
	}
	var docs []planDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("storage/mongo: list plans decode: %w", err)
	}

	plans := make([]*licensing.Plan, len(docs))
	for i := range docs {
		plans[i] = fromPlanDoc(&docs[i])
	}
	return plans, nil
}

// ==================== Customers ====================

func (s *Store) CreateCustomer(ctx context.Context, c *licensing.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	t := now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = t
	}

	_, err := s.db.Collection(colCustomers).InsertOne(ctx, toCustomerDoc(c, normalizeEmail(c.Email)))
	if mongo.IsDuplicateKeyError(err) {
		return licensing.ErrCustomerExists
	}
	if err != nil {
		return fmt.Errorf("storage/mongo: create customer: %w", err)
	}
	return nil
}

func (s *Store) getCustomer(ctx context.Context, filter bson.M) (*licensing.Customer, error) {
	var d customerDoc
	if err := s.db.Collection(colCustomers).FindOne(ctx, filter).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return nil, licensing.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("storage/mongo: get customer: %w", err)
	}
	return fromCustomerDoc(&d), nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*licensing.Customer, error) {
	return s.getCustomer(ctx, bson.M{"_id": id})
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*licensing.Customer, error) {
	return s.getCustomer(ctx, bson.M{"email_normalized": normalizeEmail(email)})
}

// ==================== Licenses ====================

func prepareLicense(l *licensing.License) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	t := now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = t
	}
	if l.ActivatedAt.IsZero() {
		l.ActivatedAt = t
	}
}

func (s *Store) adjustSeats(ctx context.Context, planID string, delta int64) error {
	_, err := s.db.Collection(colPlans).UpdateOne(ctx, bson.M{"_id": planID}, bson.M{"$inc": bson.M{"seats_used": delta}})
	if err != nil {
		return fmt.Errorf("storage/mongo: adjust seats: %w", err)
	}
	return nil
}

func (s *Store) insertLicense(ctx context.Context, l *licensing.License) error {
	_, err := s.db.Collection(colLicenses).InsertOne(ctx, toLicenseDoc(l))
	if mongo.IsDuplicateKeyError(err) {
		return licensing.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("storage/mongo: create license: %w", err)
	}
	return nil
}

func (s *Store) CreateLicense(ctx context.Context, l *licensing.License) error {
	prepareLicense(l)
	if err := s.insertLicense(ctx, l); err != nil {
		return err
	}
	if l.Status.HoldsSeat() {
		return s.adjustSeats(ctx, l.PlanID, 1)
	}
	return nil
}

func (s *Store) CreateLicenseWithinSeatLimit(ctx context.Context, l *licensing.License, limit int64) error {
	prepareLicense(l)

	res, err := s.db.Collection(colPlans).UpdateOne(ctx,
		bson.M{"_id": l.PlanID, "seats_used": bson.M{"$lt": limit}},
		bson.M{"$inc": bson.M{"seats_used": 1}},
	)
	if err != nil {
		return fmt.Errorf("storage/mongo: reserve seat: %w", err)
	}
	if res.MatchedCount == 0 {
		return licensing.ErrSeatsExhausted
	}

	if err := s.insertLicense(ctx, l); err != nil {
		if cerr := s.adjustSeats(ctx, l.PlanID, -1); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}
	return nil
}

func (s *Store) CountSeats(ctx context.Context, planID string) (int64, error) {
	n, err := s.db.Collection(colLicenses).CountDocuments(ctx, bson.M{
		"plan_id": planID,
		"status":  bson.M{"$ne": string(licensing.StatusCancelled)},
	})
	if err != nil {
		return 0, fmt.Errorf("storage/mongo: count seats: %w", err)
	}
	return n, nil
}

func (s *Store) getLicense(ctx context.Context, filter bson.M) (*licensing.License, error) {
	var d licenseDoc
	if err := s.db.Collection(colLicenses).FindOne(ctx, filter).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return nil, licensing.ErrInvalidLicense
		}
		return nil, fmt.Errorf("storage/mongo: get license: %w", err)
	}
	return fromLicenseDoc(&d), nil
}

func (s *Store) GetLicense(ctx context.Context, id string) (*licensing.License, error) {
	return s.getLicense(ctx, bson.M{"_id": id})
}

func (s *Store) GetLicenseByKey(ctx context.Context, key string) (*licensing.License, error) {
	return s.getLicense(ctx, bson.M{"license_key": key})
}

func (s *Store) ListLicenses(ctx context.Context, f storage.LicenseFilter) ([]*licensing.License, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.PlanID != "" {
		filter["plan_id"] = f.PlanID
	}
	if f.CustomerID != "" {
		filter["customer_id"] = f.CustomerID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(colLicenses).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("storage/mongo: list licenses: %w", err)
	}
	var docs []licenseDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("storage/mongo: list licenses decode: %w", err)
	}

	out := make([]*licensing.License, len(docs))
	for i := range docs {
		out[i] = fromLicenseDoc(&docs[i])
	}
	return out, nil
}

func (s *Store) UpdateLicenseStatus(ctx context.Context, id string, from, to licensing.Status, at time.Time) error {
	var prev licenseDoc
	err := s.db.Collection(colLicenses).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": at.UTC()}},
	).Decode(&prev)
	if isNoDocuments(err) {
		n, cerr := s.db.Collection(colLicenses).CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return fmt.Errorf("storage/mongo: check license: %w", cerr)
		}
		if n == 0 {
			return licensing.ErrInvalidLicense
		}
		return licensing.ErrStatusConflict
	}
	if err != nil {
		return fmt.Errorf("storage/mongo: update license status: %w", err)
	}

	held := from.HoldsSeat()
	switch {
	case held && !to.HoldsSeat():
		return s.adjustSeats(ctx, prev.PlanID, -1)
	case !held && to.HoldsSeat():
		return s.adjustSeats(ctx, prev.PlanID, 1)
	}
	return nil
}

func (s *Store) TouchLastCheck(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Collection(colLicenses).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"last_check": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("storage/mongo: touch last check: %w", err)
	}
	return nil
}

// ==================== Usage Ledger ====================

func (s *Store) AppendUsage(ctx context.Context, rec *licensing.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Millisecond)

	if _, err := s.db.Collection(colUsage).InsertOne(ctx, toUsageDoc(rec)); err != nil {
		return fmt.Errorf("storage/mongo: append usage: %w", err)
	}
	return nil
}

func (s *Store) PatchTokens(ctx context.Context, id string, tokens int64, estimated bool) error {
	res, err := s.db.Collection(colUsage).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"tokens_used": tokens, "estimated": estimated}},
	)
	if err != nil {
		return fmt.Errorf("storage/mongo: patch tokens: %w", err)
	}
	if res.MatchedCount == 0 {
		return licensing.ErrUsageNotFound
	}
	return nil
}

// usageFilter builds the match stage for a license (empty for all) and
// time range.
func usageFilter(licenseID string, r storage.TimeRange) bson.M {
	filter := bson.M{}
	if licenseID != "" {
		filter["license_id"] = licenseID
	}
	created := bson.M{}
	if !r.From.IsZero() {
		created["$gte"] = r.From.UTC()
	}
	if !r.To.IsZero() {
		created["$lte"] = r.To.UTC()
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return filter
}

func (s *Store) CountRequests(ctx context.Context, licenseID string, r storage.TimeRange) (int64, error) {
	n, err := s.db.Collection(colUsage).CountDocuments(ctx, usageFilter(licenseID, r))
	if err != nil {
		return 0, fmt.Errorf("storage/mongo: count requests: %w", err)
	}
	return n, nil
}

func (s *Store) SumUsage(ctx context.Context, licenseID string, r storage.TimeRange) (storage.UsageTotals, error) {
	return s.sum(ctx, usageFilter(licenseID, r))
}

func (s *Store) SumUsageAll(ctx context.Context, r storage.TimeRange) (storage.UsageTotals, error) {
	return s.sum(ctx, usageFilter("", r))
}

func (s *Store) sum(ctx context.Context, match bson.M) (storage.UsageTotals, error) {
	pipeline := bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{
			"_id":       nil,
			"requests":  bson.M{"$sum": 1},
			"tokens":    bson.M{"$sum": "$tokens_used"},
			"avg_rt_ms": bson.M{"$avg": "$response_time_ms"},
		}},
	}

	cursor, err := s.db.Collection(colUsage).Aggregate(ctx, pipeline)
	if err != nil {
		return storage.UsageTotals{}, fmt.Errorf("storage/mongo: sum usage: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Requests int64   `bson:"requests"`
		Tokens   int64   `bson:"tokens"`
		AvgRTMS  float64 `bson:"avg_rt_ms"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return storage.UsageTotals{}, fmt.Errorf("storage/mongo: sum usage decode: %w", err)
	}
	if len(results) == 0 {
		return storage.UsageTotals{}, nil
	}
	return storage.UsageTotals{
		Requests:          results[0].Requests,
		Tokens:            results[0].Tokens,
		AvgResponseTimeMS: results[0].AvgRTMS,
	}, nil
}

func (s *Store) ListUsage(ctx context.Context, q storage.UsageQuery) ([]*licensing.UsageRecord, error) {
	filter := usageFilter(q.LicenseID, q.Range)
	if q.Provider != "" {
		filter["provider"] = q.Provider
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(colUsage).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("storage/mongo: list usage: %w", err)
	}
	var docs []usageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("storage/mongo: list usage decode: %w", err)
	}

	out := make([]*licensing.UsageRecord, len(docs))
	for i := range docs {
		out[i] = fromUsageDoc(&docs[i])
	}
	return out, nil
}

func (s *Store) DailyUsage(ctx context.Context, licenseID string, r storage.TimeRange, provider string) ([]storage.DailyBucket, error) {
	match := usageFilter(licenseID, r)
	if provider != "" {
		match["provider"] = provider
	}

	pipeline := bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{
			"_id": bson.M{
				"date":     bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$created_at"}},
				"provider": "$provider",
			},
			"requests":  bson.M{"$sum": 1},
			"tokens":    bson.M{"$sum": "$tokens_used"},
			"avg_rt_ms": bson.M{"$avg": "$response_time_ms"},
		}},
		bson.M{"$sort": bson.D{{Key: "_id.date", Value: -1}, {Key: "_id.provider", Value: 1}}},
	}

	cursor, err := s.db.Collection(colUsage).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("storage/mongo: daily usage: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		ID struct {
			Date     string `bson:"date"`
			Provider string `bson:"provider"`
		} `bson:"_id"`
		Requests int64   `bson:"requests"`
		Tokens   int64   `bson:"tokens"`
		AvgRTMS  float64 `bson:"avg_rt_ms"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("storage/mongo: daily usage decode: %w", err)
	}

	out := make([]storage.DailyBucket, len(results))
	for i, res := range results {
		out[i] = storage.DailyBucket{
			Date:              res.ID.Date,
			Provider:          res.ID.Provider,
			Requests:          res.Requests,
			Tokens:            res.Tokens,
			AvgResponseTimeMS: res.AvgRTMS,
		}
	}
	return out, nil
}

func (s *Store) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(colUsage).DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("storage/mongo: prune usage: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Counts(ctx context.Context) (storage.Counts, error) {
	var c storage.Counts
	counts := []struct {
		col    string
		filter bson.M
		dst    *int64
	}{
		{colPlans, bson.M{}, &c.Plans},
		{colCustomers, bson.M{}, &c.Customers},
		{colLicenses, bson.M{}, &c.Licenses},
		{colLicenses, bson.M{"status": string(licensing.StatusActive)}, &c.ActiveLicenses},
		{colUsage, bson.M{}, &c.UsageRecords},
	}
	for _, q := range counts {
		n, err := s.db.Collection(q.col).CountDocuments(ctx, q.filter)
		if err != nil {
			return storage.Counts{}, fmt.Errorf("storage/mongo: count %s: %w", q.col, err)
		}
		*q.dst = n
	}
	return c, nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colCustomers: {
			{
				Keys:    bson.D{{Key: "email_normalized", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colLicenses: {
			{
				Keys:    bson.D{{Key: "license_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "plan_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		},
		colUsage: {
			{Keys: bson.D{{Key: "license_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}
