package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"news-collector/internal/news_collector/model"
)

// Mongo implements ContentStore and ConfigStore on three fixed collections.
type Mongo struct {
	DB      *mongo.Database
	News    *mongo.Collection // 集合：news
	Blobs   *mongo.Collection // 集合：attachment_blobs
	Configs *mongo.Collection // 集合：tenant_configs
}

// MustMongo connects, pings and prepares indexes; startup aborts on failure.
func MustMongo(ctx context.Context, host, dbname, username, password, authSource string) *Mongo {
	clientOpts := options.Client().ApplyURI("mongodb://" + host)
	if username != "" {
		clientOpts = clientOpts.SetAuth(options.Credential{
			Username:   username,
			Password:   password,
			AuthSource: authSource,
		})
	}

	cli, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		panic(err)
	}
	if err = cli.Ping(ctx, nil); err != nil {
		panic(err)
	}

	db := cli.Database(dbname)
	s := &Mongo{
		DB:      db,
		News:    db.Collection("news"),
		Blobs:   db.Collection("attachment_blobs"),
		Configs: db.Collection("tenant_configs"),
	}
	ensureIndexes(ctx, s)
	return s
}

func ensureIndexes(ctx context.Context, s *Mongo) {
	// news: (kb_id, fingerprint) 唯一索引是幂等入库的根基
	_, _ = s.News.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kb_id", Value: 1}, {Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "kb_id", Value: 1}, {Key: "stored_at", Value: 1}}},
		{Keys: bson.D{{Key: "source_name", Value: 1}}},
	})
	_, _ = s.Blobs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kb_id", Value: 1}, {Key: "storage_ref", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "kb_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	_, _ = s.Configs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
}

type newsDoc struct {
	KBID                string `bson:"kb_id"`
	model.ProcessedNews `bson:",inline"`
}

type blobDoc struct {
	KBID       string           `bson:"kb_id"`
	StorageRef string           `bson:"storage_ref"`
	Filename   string           `bson:"filename"`
	SizeBytes  int64            `bson:"size_bytes"`
	Data       primitive.Binary `bson:"data"`
	CreatedAt  time.Time        `bson:"created_at"`
}

// PutNews upserts by (kb_id, fingerprint). The returned reference is stable
// across re-ingestions of the same fingerprint.
func (s *Mongo) PutNews(ctx context.Context, kbID string, news model.ProcessedNews) (string, error) {
	if kbID == "" {
		return "", fmt.Errorf("%w: empty kb id", ErrInvalidKB)
	}
	doc := newsDoc{KBID: kbID, ProcessedNews: news}
	filter := bson.M{"kb_id": kbID, "fingerprint": news.Fingerprint}
	_, err := s.News.UpdateOne(ctx, filter,
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return kbID + "/" + news.Fingerprint, nil
}

// PutBlob stores the attachment body. The storage reference embeds the item
// fingerprint so filenames only have to be unique within one item.
func (s *Mongo) PutBlob(ctx context.Context, kbID string, att model.Attachment) (string, error) {
	if kbID == "" {
		return "", fmt.Errorf("%w: empty kb id", ErrInvalidKB)
	}
	ref := fmt.Sprintf("%s/%s/%s", kbID, att.ItemFingerprint, att.Filename)
	doc := blobDoc{
		KBID:       kbID,
		StorageRef: ref,
		Filename:   att.Filename,
		SizeBytes:  att.SizeBytes,
		Data:       primitive.Binary{Data: att.Bytes},
		CreatedAt:  time.Now(),
	}
	_, err := s.Blobs.UpdateOne(ctx,
		bson.M{"kb_id": kbID, "storage_ref": ref},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ref, nil
}

// QueryWindow returns news whose stored_at falls in [start, end), oldest first.
// 窗口按入库时间算：晚爬到的旧新闻也要进当期简报
func (s *Mongo) QueryWindow(ctx context.Context, kbIDs []string, start, end time.Time) ([]model.ProcessedNews, error) {
	if len(kbIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"kb_id":     bson.M{"$in": kbIDs},
		"stored_at": bson.M{"$gte": start, "$lt": end},
	}
	cur, err := s.News.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "stored_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []model.ProcessedNews
	for cur.Next(ctx) {
		var doc newsDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, doc.ProcessedNews)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// DeleteOlderThan removes news and blobs past the retention cutoff.
func (s *Mongo) DeleteOlderThan(ctx context.Context, kbID string, cutoff time.Time) (int64, error) {
	res, err := s.News.DeleteMany(ctx, bson.M{
		"kb_id":     kbID,
		"stored_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, err = s.Blobs.DeleteMany(ctx, bson.M{
		"kb_id":      kbID,
		"created_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return res.DeletedCount, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.DeletedCount, nil
}

// SaveTenantConfig upserts by tenant id.
func (s *Mongo) SaveTenantConfig(ctx context.Context, cfg model.TenantConfig) error {
	cfg.UpdatedAt = time.Now()
	_, err := s.Configs.UpdateOne(ctx,
		bson.M{"tenant_id": cfg.TenantID},
		bson.M{"$set": cfg},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Mongo) GetTenantConfig(ctx context.Context, tenantID string) (model.TenantConfig, error) {
	var cfg model.TenantConfig
	err := s.Configs.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return cfg, ErrNotFound
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return cfg, nil
}

func (s *Mongo) DeleteTenantConfig(ctx context.Context, tenantID string) error {
	res, err := s.Configs.DeleteOne(ctx, bson.M{"tenant_id": tenantID})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Mongo) ListTenantConfigs(ctx context.Context) ([]model.TenantConfig, error) {
	cur, err := s.Configs.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "tenant_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []model.TenantConfig
	for cur.Next(ctx) {
		var cfg model.TenantConfig
		if err := cur.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, cfg)
	}
	return out, cur.Err()
}
