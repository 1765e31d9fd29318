package domain

import "time"

// SettingKey identifies one brand configuration entry.
type SettingKey string

const (
	// SettingOpenAIKey is the brand's OpenAI API key used for embeddings.
	SettingOpenAIKey SettingKey = "OPENAI_API_KEY"
	// SettingLangflowKey authenticates calls to the brand's flow engine.
	SettingLangflowKey SettingKey = "LANGFLOW_API_KEY"
	// SettingChatFlowID selects the flow answering chat requests.
	SettingChatFlowID SettingKey = "CHAT_FLOW_ID"
	// SettingEmbedFlowID selects the flow used for document ingestion.
	SettingEmbedFlowID SettingKey = "EMBED_FLOW_ID"
)

// settingClassification is the exhaustive key-to-secrecy table. Storage mode
// is decided here and only here, never by the caller, so a secret key can
// never be downgraded to plaintext storage.
var settingClassification = map[SettingKey]bool{
	SettingOpenAIKey:   true,
	SettingLangflowKey: true,
	SettingChatFlowID:  false,
	SettingEmbedFlowID: false,
}

// KnownSettingKeys returns every key in the classification table.
func KnownSettingKeys() []SettingKey {
	return []SettingKey{SettingOpenAIKey, SettingLangflowKey, SettingChatFlowID, SettingEmbedFlowID}
}

// IsSecretSetting reports the static classification of key. The second
// return value is false for keys outside the table.
func IsSecretSetting(key SettingKey) (secret, known bool) {
	secret, known = settingClassification[key]
	return secret, known
}

// Setting is one (brand, key) configuration row. Exactly one of
// EncryptedValue and PlainValue is populated, per the classification table.
type Setting struct {
	ID             int64
	BrandCode      string
	Key            SettingKey
	EncryptedValue *string
	PlainValue     *string
	IsEncrypted    bool
	CreatedBy      string
	UpdatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasValue reports whether a stored value exists, decryptable or not.
func (s *Setting) HasValue() bool {
	if s.IsEncrypted {
		return s.EncryptedValue != nil && *s.EncryptedValue != ""
	}
	return s.PlainValue != nil && *s.PlainValue != ""
}

// BrandSettings aggregates the fixed set of known keys for internal
// consumers. Fields for undecryptable or missing settings stay empty.
type BrandSettings struct {
	BrandCode   string
	OpenAIKey   string
	LangflowKey string
	ChatFlowID  string
	EmbedFlowID string
}
