package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoStore implements Directory over a MongoDB database.
//
// Accounts live in the "users" collection keyed by a ULID string _id. Every
// mutation targets one document, so the conditional refresh swap is a single
// filtered update. The client is owned by the caller.
type MongoStore struct {
	db            *mongo.Database
	users         *mongo.Collection
	subscriptions *mongo.Collection
	videos        *mongo.Collection
}

type mongoAccount struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	FullName     string    `bson:"fullName"`
	Avatar       string    `bson:"avatar"`
	CoverImage   string    `bson:"coverImage"`
	Password     string    `bson:"password"`
	RefreshToken string    `bson:"refreshToken"`
	WatchHistory []string  `bson:"watchHistory"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

func (m mongoAccount) account() Account {
	return Account{
		ID:                 m.ID,
		Username:           m.Username,
		Email:              m.Email,
		FullName:           m.FullName,
		AvatarURL:          m.Avatar,
		CoverImageURL:      m.CoverImage,
		PasswordHash:       m.Password,
		RefreshTokenDigest: m.RefreshToken,
		WatchHistory:       m.WatchHistory,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

type mongoVideo struct {
	ID           string    `bson:"_id"`
	Owner        string    `bson:"owner"`
	Title        string    `bson:"title"`
	Description  string    `bson:"description"`
	Thumbnail    string    `bson:"thumbnail"`
	VideoFile    string    `bson:"videoFile"`
	Duration     float64   `bson:"duration"`
	Views        int64     `bson:"views"`
	CreatedAt    time.Time `bson:"createdAt"`
	OwnerDetails []struct {
		ID       string `bson:"_id"`
		Username string `bson:"username"`
		FullName string `bson:"fullName"`
		Avatar   string `bson:"avatar"`
	} `bson:"ownerDetails,omitempty"`
}

func (m mongoVideo) video() Video {
	return Video{
		ID:              m.ID,
		OwnerID:         m.Owner,
		Title:           m.Title,
		Description:     m.Description,
		ThumbnailURL:    m.Thumbnail,
		VideoURL:        m.VideoFile,
		DurationSeconds: m.Duration,
		Views:           m.Views,
		CreatedAt:       m.CreatedAt,
	}
}

// NewMongoStore binds a store to db and ensures its indexes exist.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("account: nil mongo database")
	}
	s := &MongoStore{
		db:            db,
		users:         db.Collection("users"),
		subscriptions: db.Collection("subscriptions"),
		videos:        db.Collection("videos"),
	}

	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uq_users_username")},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uq_users_email")},
	})
	if err != nil {
		return nil, fmt.Errorf("account: users indexes: %w", err)
	}
	_, err = s.subscriptions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subscriber", Value: 1}, {Key: "channel", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uq_subscriptions_pair")},
		{Keys: bson.D{{Key: "channel", Value: 1}}, Options: options.Index().SetName("idx_subscriptions_channel")},
	})
	if err != nil {
		return nil, fmt.Errorf("account: subscriptions indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// Close is a no-op; the client belongs to the caller.
func (s *MongoStore) Close(_ context.Context) error { return nil }

func (s *MongoStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	const op = "account.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	in, err := normalizeCreate(op, in)
	if err != nil {
		return Account{}, err
	}
	id, err := NewID(in.Now)
	if err != nil {
		return Account{}, err
	}

	doc := mongoAccount{
		ID:           id,
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Avatar:       in.AvatarURL,
		CoverImage:   in.CoverImageURL,
		Password:     in.PasswordHash,
		WatchHistory: []string{},
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Account{}, ConflictError{Op: op, Field: mongoConflictField(err)}
		}
		return Account{}, err
	}
	return doc.account(), nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (Account, error) {
	return s.findOne(ctx, "account.GetByID", bson.D{{Key: "_id", Value: strings.TrimSpace(id)}})
}

func (s *MongoStore) GetByUsername(ctx context.Context, username string) (Account, error) {
	key := NormalizeUsername(username)
	if key == "" {
		return Account{}, invalid("account.GetByUsername", "empty key")
	}
	return s.findOne(ctx, "account.GetByUsername", bson.D{{Key: "username", Value: key}})
}

func (s *MongoStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	key := NormalizeEmail(email)
	if key == "" {
		return Account{}, invalid("account.GetByEmail", "empty key")
	}
	return s.findOne(ctx, "account.GetByEmail", bson.D{{Key: "email", Value: key}})
}

func (s *MongoStore) findOne(ctx context.Context, op string, filter bson.D) (Account, error) {
	var doc mongoAccount
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}
	return doc.account(), nil
}

func (s *MongoStore) UpdateDetails(ctx context.Context, id string, in DetailsInput) (Account, error) {
	const op = "account.UpdateDetails"

	fullName := strings.TrimSpace(in.FullName)
	email := NormalizeEmail(in.Email)
	if fullName == "" || email == "" {
		return Account{}, invalid(op, "full name and email are required")
	}
	return s.setReturning(ctx, op, id, bson.D{
		{Key: "fullName", Value: fullName},
		{Key: "email", Value: email},
		{Key: "updatedAt", Value: nowOr(in.Now)},
	})
}

func (s *MongoStore) UpdateAvatar(ctx context.Context, id, url string, now time.Time) (Account, error) {
	return s.setReturning(ctx, "account.UpdateAvatar", id, bson.D{
		{Key: "avatar", Value: url},
		{Key: "updatedAt", Value: nowOr(now)},
	})
}

func (s *MongoStore) UpdateCoverImage(ctx context.Context, id, url string, now time.Time) (Account, error) {
	return s.setReturning(ctx, "account.UpdateCoverImage", id, bson.D{
		{Key: "coverImage", Value: url},
		{Key: "updatedAt", Value: nowOr(now)},
	})
}

func (s *MongoStore) setReturning(ctx context.Context, op, id string, set bson.D) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	var doc mongoAccount
	err := s.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: strings.TrimSpace(id)}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		if mongo.IsDuplicateKeyError(err) {
			return Account{}, ConflictError{Op: op, Field: mongoConflictField(err)}
		}
		return Account{}, err
	}
	return doc.account(), nil
}

func (s *MongoStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "account.UpdatePasswordHash"
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "empty hash")
	}
	return s.set(ctx, op, id, bson.D{
		{Key: "password", Value: hash},
		{Key: "updatedAt", Value: nowOr(now)},
	})
}

func (s *MongoStore) SetRefreshTokenDigest(ctx context.Context, id, digest string, now time.Time) error {
	return s.set(ctx, "account.SetRefreshTokenDigest", id, bson.D{
		{Key: "refreshToken", Value: digest},
		{Key: "updatedAt", Value: nowOr(now)},
	})
}

func (s *MongoStore) set(ctx context.Context, op, id string, set bson.D) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: strings.TrimSpace(id)}},
		bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func (s *MongoStore) SwapRefreshTokenDigest(ctx context.Context, id, expected, next string, now time.Time) error {
	const op = "account.SwapRefreshTokenDigest"

	if err := ctx.Err(); err != nil {
		return err
	}
	if expected == "" || next == "" {
		return staleRefresh(op)
	}
	res, err := s.users.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: strings.TrimSpace(id)},
			{Key: "refreshToken", Value: expected},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "refreshToken", Value: next},
			{Key: "updatedAt", Value: nowOr(now)},
		}}})
	if err != nil {
		return err
	}
	if res.MatchedCount != 1 {
		return staleRefresh(op)
	}
	return nil
}

func (s *MongoStore) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	const op = "account.ChannelProfile"

	key := NormalizeUsername(username)
	if key == "" {
		return ChannelProfile{}, invalid(op, "username is required")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "username", Value: key}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "subscriptions"},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "channel"},
			{Key: "as", Value: "subscribers"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "subscriptions"},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "subscriber"},
			{Key: "as", Value: "subscribedTo"},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "username", Value: 1},
			{Key: "email", Value: 1},
			{Key: "fullName", Value: 1},
			{Key: "avatar", Value: 1},
			{Key: "coverImage", Value: 1},
			{Key: "subscribersCount", Value: bson.D{{Key: "$size", Value: "$subscribers"}}},
			{Key: "channelsSubscribedToCount", Value: bson.D{{Key: "$size", Value: "$subscribedTo"}}},
			{Key: "isSubscribed", Value: bson.D{{Key: "$in", Value: bson.A{viewerID, "$subscribers.subscriber"}}}},
		}}},
	}

	cur, err := s.users.Aggregate(ctx, pipeline)
	if err != nil {
		return ChannelProfile{}, err
	}
	var rows []struct {
		ID                        string `bson:"_id"`
		Username                  string `bson:"username"`
		Email                     string `bson:"email"`
		FullName                  string `bson:"fullName"`
		Avatar                    string `bson:"avatar"`
		CoverImage                string `bson:"coverImage"`
		SubscribersCount          int64  `bson:"subscribersCount"`
		ChannelsSubscribedToCount int64  `bson:"channelsSubscribedToCount"`
		IsSubscribed              bool   `bson:"isSubscribed"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return ChannelProfile{}, err
	}
	if len(rows) == 0 {
		return ChannelProfile{}, NotFoundError{Op: op, Resource: "channel"}
	}
	r := rows[0]
	return ChannelProfile{
		ID:                        r.ID,
		Username:                  r.Username,
		Email:                     r.Email,
		FullName:                  r.FullName,
		AvatarURL:                 r.Avatar,
		CoverImageURL:             r.CoverImage,
		SubscribersCount:          r.SubscribersCount,
		ChannelsSubscribedToCount: r.ChannelsSubscribedToCount,
		IsSubscribed:              viewerID != "" && r.IsSubscribed,
	}, nil
}

func (s *MongoStore) WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error) {
	const op = "account.WatchHistory"

	acc, err := s.findOne(ctx, op, bson.D{{Key: "_id", Value: strings.TrimSpace(id)}})
	if err != nil {
		return nil, err
	}
	out := make([]WatchedVideo, 0, len(acc.WatchHistory))
	if len(acc.WatchHistory) == 0 {
		return out, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: acc.WatchHistory}}}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "users"},
			{Key: "localField", Value: "owner"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "ownerDetails"},
			{Key: "pipeline", Value: mongo.Pipeline{
				{{Key: "$project", Value: bson.D{
					{Key: "username", Value: 1},
					{Key: "fullName", Value: 1},
					{Key: "avatar", Value: 1},
				}}},
			}},
		}}},
	}
	cur, err := s.videos.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var docs []mongoVideo
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	byID := make(map[string]mongoVideo, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	// $in does not preserve order or repeats; replay the stored history.
	for _, vid := range acc.WatchHistory {
		d, ok := byID[vid]
		if !ok {
			continue
		}
		w := WatchedVideo{Video: d.video()}
		if len(d.OwnerDetails) > 0 {
			o := d.OwnerDetails[0]
			w.Owner = Owner{ID: o.ID, Username: o.Username, FullName: o.FullName, AvatarURL: o.Avatar}
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *MongoStore) Subscribe(ctx context.Context, subscriberID, channelID string, now time.Time) error {
	const op = "account.Subscribe"

	if subscriberID == "" || channelID == "" {
		return invalid(op, "subscriber and channel are required")
	}
	n, err := s.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{subscriberID, channelID}}}}})
	if err != nil {
		return err
	}
	want := int64(2)
	if subscriberID == channelID {
		want = 1
	}
	if n != want {
		return NotFoundError{Op: op, Resource: "account"}
	}

	_, err = s.subscriptions.UpdateOne(ctx,
		bson.D{{Key: "subscriber", Value: subscriberID}, {Key: "channel", Value: channelID}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: nowOr(now)}}}},
		options.UpdateOne().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}
	return nil
}

func (s *MongoStore) CreateVideo(ctx context.Context, v Video) (Video, error) {
	const op = "account.CreateVideo"

	v, err := normalizeVideo(op, v)
	if err != nil {
		return Video{}, err
	}
	n, err := s.users.CountDocuments(ctx, bson.D{{Key: "_id", Value: v.OwnerID}})
	if err != nil {
		return Video{}, err
	}
	if n == 0 {
		return Video{}, NotFoundError{Op: op, Resource: "owner"}
	}
	_, err = s.videos.InsertOne(ctx, mongoVideo{
		ID:          v.ID,
		Owner:       v.OwnerID,
		Title:       v.Title,
		Description: v.Description,
		Thumbnail:   v.ThumbnailURL,
		VideoFile:   v.VideoURL,
		Duration:    v.DurationSeconds,
		Views:       v.Views,
		CreatedAt:   v.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Video{}, ConflictError{Op: op, Field: "id"}
		}
		return Video{}, err
	}
	return v, nil
}

func (s *MongoStore) AppendWatchHistory(ctx context.Context, id, videoID string, now time.Time) error {
	const op = "account.AppendWatchHistory"

	n, err := s.videos.CountDocuments(ctx, bson.D{{Key: "_id", Value: videoID}})
	if err != nil {
		return err
	}
	if n == 0 {
		return NotFoundError{Op: op, Resource: "video"}
	}
	res, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: strings.TrimSpace(id)}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "watchHistory", Value: videoID}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: nowOr(now)}}},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func mongoConflictField(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "username"):
		return "username"
	case strings.Contains(msg, "email"):
		return "email"
	default:
		return ""
	}
}
