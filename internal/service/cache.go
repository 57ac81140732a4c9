package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"viral-clipper/internal/dto"
	"viral-clipper/internal/types"
	"viral-clipper/log"
)

// ResultCache stores serialized results by key.
type ResultCache interface {
	Get(key string) ([]byte, bool, error)
	Put(key, sourceRef string, data []byte) error
}

// CachedAnalyzer serves repeated analyses of the same source and settings
// from a ResultCache. Cache failures are logged and never fail a run.
type CachedAnalyzer struct {
	Inner Analyzer
	Cache ResultCache
}

var _ Analyzer = (*CachedAnalyzer)(nil)

func (a *CachedAnalyzer) Analyze(ctx context.Context, sourceRef string, cfg dto.AnalyzeConfig, progress ProgressFunc) (*types.RankedResult, error) {
	cfg = cfg.WithDefaults()
	key := CacheKey(sourceRef, cfg)

	if data, ok, err := a.Cache.Get(key); err != nil {
		log.GetLogger().Warn("result cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var cached types.RankedResult
		if err = json.Unmarshal(data, &cached); err == nil {
			log.GetLogger().Info("serving cached analysis", zap.String("source", sourceRef))
			return &cached, nil
		}
		log.GetLogger().Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
	}

	result, err := a.Inner.Analyze(ctx, sourceRef, cfg, progress)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err != nil {
		log.GetLogger().Warn("result not cacheable", zap.Error(err))
	} else if err = a.Cache.Put(key, sourceRef, data); err != nil {
		log.GetLogger().Warn("result cache write failed", zap.String("key", key), zap.Error(err))
	}
	return result, nil
}

// CacheKey identifies a run by source and every setting that changes its
// output.
func CacheKey(sourceRef string, cfg dto.AnalyzeConfig) string {
	raw := fmt.Sprintf("%s|%d|%s|%g|%g", sourceRef, cfg.MaxClips, cfg.WhisperModel, cfg.MinDuration, cfg.MaxDuration)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
