package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&City{},
		&Spot{},
		&MonitoredLocation{},
		&Author{},
		&Category{},
		&Tag{},
		&Post{},
		&AdhocJob{},
	)
}

// initialLastUpdated backdates freshly created locations slightly so they
// sort ahead of locations the poller has already visited.
func initialLastUpdated() time.Time {
	return time.Now().UTC().Add(-60 * time.Second)
}

type LocationRepository struct {
	db *gorm.DB
}

func NewLocationRepository(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db}
}

func (r *LocationRepository) Get(ctx context.Context, id string) (*MonitoredLocation, error) {
	var loc MonitoredLocation
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&loc)
	if result.Error != nil {
		return nil, result.Error
	}
	return &loc, nil
}

// NextEligible returns the least-recently-updated location attached to a
// city-assigned spot, skipping placeholder ids and the excluded set. Returns
// (nil, nil) when nothing qualifies.
func (r *LocationRepository) NextEligible(ctx context.Context, excludedIDs []string) (*MonitoredLocation, error) {
	query := r.db.WithContext(ctx).
		Joins("JOIN spots ON spots.id = monitored_locations.spot_id").
		Where("spots.city_id IS NOT NULL").
		Where("monitored_locations.external_id <> ?", PlaceholderExternalID)
	if len(excludedIDs) > 0 {
		query = query.Where("monitored_locations.id NOT IN ?", excludedIDs)
	}

	var loc MonitoredLocation
	result := query.Order("monitored_locations.last_updated ASC").First(&loc)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &loc, nil
}

func (r *LocationRepository) ExternalIDKnown(ctx context.Context, externalID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&MonitoredLocation{}).
		Where("external_id = ?", externalID).
		Count(&count)
	return count > 0, result.Error
}

func (r *LocationRepository) Create(ctx context.Context, loc *MonitoredLocation) error {
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}
	if loc.LastUpdated.IsZero() {
		loc.LastUpdated = initialLastUpdated()
	}
	return r.db.WithContext(ctx).Create(loc).Error
}

func (r *LocationRepository) BySpot(ctx context.Context, spotID string) ([]MonitoredLocation, error) {
	var locations []MonitoredLocation
	result := r.db.WithContext(ctx).Where("spot_id = ?", spotID).Find(&locations)
	return locations, result.Error
}

// SaveCursor persists the pagination cursor and moves LastUpdated forward.
// Called after every successful ingestion pass, even an empty one.
func (r *LocationRepository) SaveCursor(ctx context.Context, id, cursor string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&MonitoredLocation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"latest_cursor": cursor,
			"last_updated":  at,
		}).Error
}

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&Post{}).
		Where("external_id = ?", externalID).
		Count(&count)
	return count > 0, result.Error
}

// Create inserts the post unless another writer got the same external id in
// first. Returns false when the row already existed.
func (r *PostRepository) Create(ctx context.Context, post *Post) (bool, error) {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).
		Create(post)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *PostRepository) UpsertAuthor(ctx context.Context, externalID, username string) (*Author, error) {
	author := Author{
		ID:         uuid.New().String(),
		ExternalID: externalID,
		Username:   username,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}, {Name: "username"}},
			DoNothing: true,
		}).
		Create(&author)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return &author, nil
	}

	var existing Author
	err := r.db.WithContext(ctx).
		Where("external_id = ? AND username = ?", externalID, username).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *PostRepository) UpsertTag(ctx context.Context, label string) (*Tag, error) {
	tag := Tag{ID: uuid.New().String(), Label: label}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "label"}},
			DoNothing: true,
		}).
		Create(&tag)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return &tag, nil
	}

	var existing Tag
	if err := r.db.WithContext(ctx).Where("label = ?", label).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *PostRepository) UpsertCategory(ctx context.Context, label string) (*Category, error) {
	category := Category{ID: uuid.New().String(), Label: label}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "label"}},
			DoNothing: true,
		}).
		Create(&category)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return &category, nil
	}

	var existing Category
	if err := r.db.WithContext(ctx).Where("label = ?", label).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *PostRepository) LinkTag(ctx context.Context, post *Post, tag *Tag) error {
	return r.db.WithContext(ctx).Model(post).Association("Tags").Append(tag)
}

type SpotRepository struct {
	db *gorm.DB
}

func NewSpotRepository(db *gorm.DB) *SpotRepository {
	return &SpotRepository{db: db}
}

func (r *SpotRepository) CreateAdhoc(ctx context.Context, lat, lng float64) (*Spot, error) {
	spot := Spot{
		ID:        uuid.New().String(),
		Latitude:  lat,
		Longitude: lng,
		IsAdhoc:   true,
	}
	if err := r.db.WithContext(ctx).Create(&spot).Error; err != nil {
		return nil, err
	}
	return &spot, nil
}

func (r *SpotRepository) Create(ctx context.Context, spot *Spot) error {
	if spot.ID == "" {
		spot.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(spot).Error
}

func (r *SpotRepository) UpsertCity(ctx context.Context, city *City) (*City, error) {
	if city.ID == "" {
		city.ID = uuid.New().String()
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(city)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 {
		return city, nil
	}

	var existing City
	if err := r.db.WithContext(ctx).Where("name = ?", city.Name).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *SpotRepository) CountByCity(ctx context.Context, cityID string) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&Spot{}).
		Where("city_id = ?", cityID).
		Count(&count)
	return count, result.Error
}

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *AdhocJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = JobStatusInProgress
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepository) Get(ctx context.Context, id string) (*AdhocJob, error) {
	var job AdhocJob
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&job)
	if result.Error != nil {
		return nil, result.Error
	}
	return &job, nil
}

func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&AdhocJob{}).
		Where("id = ?", id).
		Update("status", JobStatusCompleted).Error
}

func (r *JobRepository) MarkError(ctx context.Context, id, detail string) error {
	return r.db.WithContext(ctx).
		Model(&AdhocJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         JobStatusError,
			"failure_detail": detail,
		}).Error
}
