package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type MediaConfig struct {
	PublicDir        string
	ImagePromptLimit int
	VideoPromptLimit int
	DownloadTimeout  time.Duration
	MaxArtifactBytes int64
}

// PollConfig bounds one polling loop: at most MaxAttempts polls, Interval apart.
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

type GenerationConfig struct {
	ImageVendor string
	VideoVendor string
	// VideoModel is the default Volcengine video req_key (legacy VIDEO_MODEL).
	VideoModel string
	ImagePoll  PollConfig
	VideoPoll  PollConfig
}

type KeyPair struct {
	AccessKey string
	SecretKey string
}

type VolcengineCredentials struct {
	Image KeyPair
	Video KeyPair
}

type APIKeyCredentials struct {
	APIKey string
}

// CredentialsConfig holds process-wide defaults. Per-request credentials win.
type CredentialsConfig struct {
	Volcengine VolcengineCredentials
	DashScope  APIKeyCredentials
	Ark        APIKeyCredentials
}

type VolcengineEndpoint struct {
	Endpoint string
	Host     string
	Region   string
	Service  string
	Version  string
}

type DashScopeEndpoint struct {
	BaseURL    string
	ImageModel string
	VideoModel string
	I2VModel   string
}

type ArkEndpoint struct {
	BaseURL    string
	ImageModel string
	VideoModel string
}

type VendorsConfig struct {
	Volcengine VolcengineEndpoint
	DashScope  DashScopeEndpoint
	Ark        ArkEndpoint
	Timeout    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
	// ClaimInterval is how long a group message may sit unacknowledged
	// before another consumer claims it.
	ClaimInterval time.Duration
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	// Async leaves mirroring to the worker, which follows the event stream.
	// It only takes effect when redis is configured.
	Async bool
}

type RetentionConfig struct {
	MaxAge   time.Duration
	Schedule string
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Media            MediaConfig
	Generation       GenerationConfig
	Credentials      CredentialsConfig
	Vendors          VendorsConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Retention        RetentionConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("OPENJOURNEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnv keeps the variable names the web frontend's .env files use.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"credentials.volcengine.image.accesskey": "JIMENG_IMAGE_ACCESS_KEY",
		"credentials.volcengine.image.secretkey": "JIMENG_IMAGE_SECRET_KEY",
		"credentials.volcengine.video.accesskey": "JIMENG_VIDEO_ACCESS_KEY",
		"credentials.volcengine.video.secretkey": "JIMENG_VIDEO_SECRET_KEY",
		"credentials.dashscope.apikey":           "DASHSCOPE_API_KEY",
		"credentials.ark.apikey":                 "ARK_API_KEY",
		"generation.videomodel":                  "VIDEO_MODEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "OPENJOURNEY_"+envKey(key), env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "30s")
	// generation requests block while the vendor works; video can take minutes
	v.SetDefault("http.writetimeout", "5m")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("media.publicdir", "public")
	v.SetDefault("media.imagepromptlimit", 1000)
	v.SetDefault("media.videopromptlimit", 50)
	v.SetDefault("media.downloadtimeout", "2m")
	v.SetDefault("media.maxartifactbytes", 512<<20)

	v.SetDefault("generation.videomodel", "")
	v.SetDefault("generation.imagevendor", "volcengine")
	v.SetDefault("generation.videovendor", "volcengine")
	v.SetDefault("generation.imagepoll.maxattempts", 20)
	v.SetDefault("generation.imagepoll.interval", "3s")
	v.SetDefault("generation.videopoll.maxattempts", 20)
	v.SetDefault("generation.videopoll.interval", "10s")

	v.SetDefault("vendors.timeout", "30s")
	v.SetDefault("vendors.volcengine.endpoint", "https://visual.volcengineapi.com")
	v.SetDefault("vendors.volcengine.host", "visual.volcengineapi.com")
	v.SetDefault("vendors.volcengine.region", "cn-north-1")
	v.SetDefault("vendors.volcengine.service", "cv")
	v.SetDefault("vendors.volcengine.version", "2022-08-31")
	v.SetDefault("vendors.dashscope.baseurl", "https://dashscope.aliyuncs.com")
	v.SetDefault("vendors.dashscope.imagemodel", "qwen-image")
	v.SetDefault("vendors.dashscope.videomodel", "wanx2.1-t2v-turbo")
	v.SetDefault("vendors.dashscope.i2vmodel", "wanx2.1-i2v-turbo")
	v.SetDefault("vendors.ark.baseurl", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("vendors.ark.imagemodel", "doubao-seedream-4-0-250828")
	v.SetDefault("vendors.ark.videomodel", "doubao-seedance-1-0-pro-250528")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "media:generated")
	v.SetDefault("redis.group", "media-mirror")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.claiminterval", "1m")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucket", "openjourney-media")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.async", false)

	v.SetDefault("retention.maxage", "0s")
	v.SetDefault("retention.schedule", "0 0 3 * * *")

	v.SetDefault("logging.level", "")
	v.SetDefault("allowcorsorigins", []string{})
}
