// Package settings persists brand configuration with static secret
// classification and selective at-rest encryption.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/crypto"
	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/repository"
)

// MaskedValue is the fixed placeholder shown for secrets. The real value or
// its ciphertext never leaves the server process.
const MaskedValue = "••••••••"

// UISetting is the client-safe projection of one setting row.
type UISetting struct {
	Key          domain.SettingKey `json:"key"`
	DisplayValue string            `json:"value"`
	IsEncrypted  bool              `json:"isEncrypted"`
	HasValue     bool              `json:"hasValue"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	UpdatedBy    string            `json:"updatedBy"`
}

// Service implements the brand-scoped settings operations.
type Service struct {
	repo      repository.SettingRepository
	cipher    *crypto.Cipher
	snowflake *snowflake.Node
	logger    *zap.Logger
}

// NewService wires dependencies.
func NewService(repo repository.SettingRepository, cipher *crypto.Cipher, node *snowflake.Node, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.L()
	}
	return &Service{repo: repo, cipher: cipher, snowflake: node, logger: logger}
}

// Upsert stores value for (brand, key). Whether the value is encrypted is
// decided by the classification table alone; callers cannot downgrade a
// secret to plaintext storage.
func (s *Service) Upsert(ctx context.Context, brandCode string, key domain.SettingKey, value, modifiedBy string) (domain.Setting, error) {
	secret, known := domain.IsSecretSetting(key)
	if !known {
		return domain.Setting{}, fmt.Errorf("%w: %s", domain.ErrUnknownSettingKey, key)
	}
	if value == "" {
		return domain.Setting{}, fmt.Errorf("upsert setting %s: empty value", key)
	}

	setting := domain.Setting{
		ID:          s.snowflake.Generate().Int64(),
		BrandCode:   brandCode,
		Key:         key,
		IsEncrypted: secret,
		UpdatedBy:   modifiedBy,
	}

	if secret {
		encrypted, err := s.cipher.Encrypt(value)
		if err != nil {
			return domain.Setting{}, fmt.Errorf("encrypt setting %s: %w", key, err)
		}
		setting.EncryptedValue = &encrypted
	} else {
		setting.PlainValue = &value
	}

	stored, err := s.repo.Upsert(ctx, setting)
	if err != nil {
		return domain.Setting{}, err
	}

	s.logger.Info("brand setting updated",
		zap.String("brand", brandCode),
		zap.String("key", string(key)),
		zap.Bool("encrypted", secret),
		zap.String("modified_by", modifiedBy),
	)
	return stored, nil
}

// ListForUI returns the masked projection of every stored setting for the
// brand. HasValue reflects presence regardless of decryptability, so a
// corrupted secret still shows as configured.
func (s *Service) ListForUI(ctx context.Context, brandCode string) ([]UISetting, error) {
	rows, err := s.repo.List(ctx, brandCode)
	if err != nil {
		return nil, err
	}

	out := make([]UISetting, 0, len(rows))
	for _, row := range rows {
		view := UISetting{
			Key:         row.Key,
			IsEncrypted: row.IsEncrypted,
			HasValue:    row.HasValue(),
			UpdatedAt:   row.UpdatedAt,
			UpdatedBy:   row.UpdatedBy,
		}
		if row.IsEncrypted {
			if view.HasValue {
				view.DisplayValue = MaskedValue
			}
		} else if row.PlainValue != nil {
			view.DisplayValue = *row.PlainValue
		}
		out = append(out, view)
	}
	return out, nil
}

// DecryptedValue returns the stored value for server-side use. Missing rows
// and undecryptable secrets both degrade to ("", false): a corrupt or
// key-rotated secret reads as "not configured" rather than failing the
// caller.
func (s *Service) DecryptedValue(ctx context.Context, brandCode string, key domain.SettingKey) (string, bool, error) {
	row, err := s.repo.Get(ctx, brandCode, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	if !row.IsEncrypted {
		if row.PlainValue == nil || *row.PlainValue == "" {
			return "", false, nil
		}
		return *row.PlainValue, true, nil
	}

	if row.EncryptedValue == nil || *row.EncryptedValue == "" {
		return "", false, nil
	}
	plaintext, err := s.cipher.Decrypt(*row.EncryptedValue)
	if err != nil {
		s.logger.Error("setting decrypt failed",
			zap.String("brand", brandCode),
			zap.String("key", string(key)),
			zap.String("ciphertext_prefix", crypto.TruncateForLog(*row.EncryptedValue)),
			zap.Error(err),
		)
		return "", false, nil
	}
	return plaintext, true, nil
}

// BrandSettings aggregates the fixed known keys into named fields. One
// corrupt secret must not block the others; failing keys are skipped and
// logged individually by DecryptedValue.
func (s *Service) BrandSettings(ctx context.Context, brandCode string) (domain.BrandSettings, error) {
	bundle := domain.BrandSettings{BrandCode: brandCode}

	assign := map[domain.SettingKey]*string{
		domain.SettingOpenAIKey:   &bundle.OpenAIKey,
		domain.SettingLangflowKey: &bundle.LangflowKey,
		domain.SettingChatFlowID:  &bundle.ChatFlowID,
		domain.SettingEmbedFlowID: &bundle.EmbedFlowID,
	}
	for _, key := range domain.KnownSettingKeys() {
		value, ok, err := s.DecryptedValue(ctx, brandCode, key)
		if err != nil {
			return domain.BrandSettings{}, err
		}
		if ok {
			*assign[key] = value
		}
	}
	return bundle, nil
}
