package credstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"carouselgen/internal/gemini"
	"carouselgen/internal/storage"
)

const (
	// slotName settings表里的凭据槽位名，同一时刻只有一个有效凭据
	slotName = "gemini_api_key"
	// EnvCredential 槽位为空时的环境变量回退
	EnvCredential = "GEMINI_API_KEY"
)

// ErrEmptyCandidate 待测凭据为空
var ErrEmptyCandidate = errors.New("credstore: empty candidate credential")

// Validator 对候选凭据发起最小生成调用
type Validator interface {
	Ping(ctx context.Context, credential string) error
}

// Store 单槽位凭据存储，落地在sqlite，变更时通知订阅者
type Store struct {
	db        *storage.DB
	validator Validator

	mu   sync.Mutex
	subs []func(credential string)
}

// New 创建凭据存储
func New(db *storage.DB, validator Validator) *Store {
	return &Store{db: db, validator: validator}
}

// Get 读取当前有效凭据，槽位为空时回退到环境变量
func (s *Store) Get() (string, bool) {
	value, ok, err := s.db.GetSetting(slotName)
	if err != nil {
		logrus.WithError(err).Error("read credential slot")
		return "", false
	}
	if ok && value != "" {
		return value, true
	}
	if env := os.Getenv(EnvCredential); env != "" {
		return env, true
	}
	return "", false
}

// Test 用候选凭据做一次最小调用。provider过载（KindUnavailable）视为凭据有效；
// 校验通过后把候选凭据写入槽位
func (s *Store) Test(ctx context.Context, candidate string) error {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return ErrEmptyCandidate
	}

	if err := s.validator.Ping(ctx, candidate); err != nil {
		if gemini.KindOf(err) != gemini.KindUnavailable {
			return err
		}
		logrus.Warn("provider overloaded during credential test, treating as valid")
	}
	return s.save(candidate)
}

// ExportEncrypted 导出口令加密的凭据blob
func (s *Store) ExportEncrypted(candidate, passphrase string) ([]byte, error) {
	return encryptCredential(candidate, passphrase)
}

// ImportEncrypted 解密并导入凭据blob，成功后覆盖槽位并通知订阅者
func (s *Store) ImportEncrypted(blob []byte, passphrase string) (string, error) {
	credential, err := decryptCredential(blob, passphrase)
	if err != nil {
		return "", err
	}
	if err := s.save(credential); err != nil {
		return "", err
	}
	return credential, nil
}

// Clear 清空槽位，编排器在provider拒绝凭据时调用
func (s *Store) Clear() error {
	return s.db.DeleteSetting(slotName)
}

// Subscribe 注册凭据变更回调
func (s *Store) Subscribe(fn func(credential string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) save(credential string) error {
	if err := s.db.PutSetting(slotName, credential); err != nil {
		return err
	}
	s.mu.Lock()
	subs := make([]func(string), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(credential)
	}
	return nil
}
