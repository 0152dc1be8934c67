// Package config, engine'in tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Engine bir embedded library olduğu için host uygulama Config'i kodda da
// kurabilir (Default() + alan set etme) — Load() env tabanlı kurulum
// isteyenler içindir.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config, engine'in tüm konfigürasyon değerlerini taşır.
// Her alt bölüm ayrı bir struct — her struct tek bir concern'ü temsil eder.
type Config struct {
	Reconcile ReconcileConfig
	Send      SendConfig
	Typing    TypingConfig
	Store     StoreConfig
	Journal   JournalConfig
}

// ReconcileConfig, reconciliation davranış ayarları.
type ReconcileConfig struct {
	// Window: Fingerprint eşleşmesinin geçerli olduğu süre.
	// Bu süreden eski pending entry'ler artık sadece ClientID ile eşleşir —
	// aynı kullanıcının kasıtlı tekrar gönderimlerinin yanlışlıkla
	// birleştirilmesini önler.
	Window time.Duration

	// SafetyNetInterval: Run loop içindeki periyodik yeniden-reconcile aralığı.
	// Birincil güncelleme yolu DEĞİLDİR — stream'in kaçırdığı bir durumu
	// toparlayan sınırlı frekanslı emniyet kemeridir.
	SafetyNetInterval time.Duration
}

// SendConfig, gönderim yolu ayarları.
type SendConfig struct {
	// DuplicateWindow: Aynı fingerprint'li ikinci submit'in no-op sayıldığı süre.
	DuplicateWindow time.Duration

	// Timeout: Tek bir network send denemesinin zaman aşımı.
	Timeout time.Duration

	// RateLimit / RateWindow / RateCooldown: Konuşma başına spam koruması.
	// RateLimit <= 0 ise limiter devre dışıdır.
	RateLimit    int
	RateWindow   time.Duration
	RateCooldown time.Duration
}

// TypingConfig, typing sinyali ayarları.
type TypingConfig struct {
	// Debounce: Son tuş vuruşundan bu kadar süre sonra "yazıyor" durumu düşer.
	Debounce time.Duration

	// TTL: Uzak bir typing sinyalinin yenilenmeden geçerli kaldığı süre.
	TTL time.Duration
}

// StoreConfig, store adapter'larının bağlantı ayarları.
// Engine'in kendisi bunları kullanmaz — WSStore / RedisTyping kurulumu için.
type StoreConfig struct {
	WSURL     string // ws:// veya wss:// — boşsa WSStore kurulmaz
	RedisAddr string // host:port — boşsa RedisTyping kurulmaz
	PageSize  int    // FetchOlder sayfa boyutu
}

// JournalConfig, opsiyonel durable pending journal ayarları.
type JournalConfig struct {
	// Path: SQLite dosya yolu. Boşsa journal devre dışıdır ve pending
	// entry'ler process ömrüyle sınırlı kalır (core garanti bu kadardır).
	Path string
}

// Default, makul varsayılanlarla bir Config döner.
func Default() *Config {
	return &Config{
		Reconcile: ReconcileConfig{
			Window:            30 * time.Second,
			SafetyNetInterval: 30 * time.Second,
		},
		Send: SendConfig{
			DuplicateWindow: 5 * time.Second,
			Timeout:         10 * time.Second,
			RateLimit:       10,
			RateWindow:      5 * time.Second,
			RateCooldown:    15 * time.Second,
		},
		Typing: TypingConfig{
			Debounce: 3 * time.Second,
			TTL:      6 * time.Second,
		},
		Store: StoreConfig{
			PageSize: 50,
		},
	}
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler (development kolaylığı için).
func Load() (*Config, error) {
	// .env dosyasını yükle — dosya yoksa hata vermez, sessizce devam eder.
	_ = godotenv.Load()

	cfg := Default()

	var err error
	if cfg.Reconcile.Window, err = getDuration("CHATSYNC_RECONCILE_WINDOW", cfg.Reconcile.Window); err != nil {
		return nil, err
	}
	if cfg.Reconcile.SafetyNetInterval, err = getDuration("CHATSYNC_SAFETY_NET_INTERVAL", cfg.Reconcile.SafetyNetInterval); err != nil {
		return nil, err
	}
	if cfg.Send.DuplicateWindow, err = getDuration("CHATSYNC_DUPLICATE_WINDOW", cfg.Send.DuplicateWindow); err != nil {
		return nil, err
	}
	if cfg.Send.Timeout, err = getDuration("CHATSYNC_SEND_TIMEOUT", cfg.Send.Timeout); err != nil {
		return nil, err
	}
	if cfg.Send.RateLimit, err = getInt("CHATSYNC_SEND_RATE_LIMIT", cfg.Send.RateLimit); err != nil {
		return nil, err
	}
	if cfg.Send.RateWindow, err = getDuration("CHATSYNC_SEND_RATE_WINDOW", cfg.Send.RateWindow); err != nil {
		return nil, err
	}
	if cfg.Send.RateCooldown, err = getDuration("CHATSYNC_SEND_RATE_COOLDOWN", cfg.Send.RateCooldown); err != nil {
		return nil, err
	}
	if cfg.Typing.Debounce, err = getDuration("CHATSYNC_TYPING_DEBOUNCE", cfg.Typing.Debounce); err != nil {
		return nil, err
	}
	if cfg.Typing.TTL, err = getDuration("CHATSYNC_TYPING_TTL", cfg.Typing.TTL); err != nil {
		return nil, err
	}
	if cfg.Store.PageSize, err = getInt("CHATSYNC_PAGE_SIZE", cfg.Store.PageSize); err != nil {
		return nil, err
	}

	cfg.Store.WSURL = getEnv("CHATSYNC_WS_URL", "")
	cfg.Store.RedisAddr = getEnv("CHATSYNC_REDIS_ADDR", "")
	cfg.Journal.Path = getEnv("CHATSYNC_JOURNAL_PATH", "")

	return cfg, nil
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// getDuration, env'den time.Duration okur ("30s", "5m" formatı).
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getInt, env'den int okur.
func getInt(key string, fallback int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
