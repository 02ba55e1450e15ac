package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// MountConfig holds every option a mount invocation accepts, layered
// over Configuration the same way the teacher's other sections are:
// defaults, then file, then environment.
type MountConfig struct {
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	MountPoint string `yaml:"mountpoint"`

	Endpoint  string `yaml:"endpoint"`
	AK        string `yaml:"ak"`
	SK        string `yaml:"sk"`
	STSToken  string `yaml:"sts_token"`
	CreateBkt bool   `yaml:"create_bucket"`

	CacheDir    string `yaml:"cache_dir"`
	TmpDir      string `yaml:"tmp_dir"`
	RemoveCache bool   `yaml:"remove_cache"`

	MetaExpiresSec int64 `yaml:"meta_expires_s"`
	MetaCapacity   int   `yaml:"meta_capacity"`

	MultipartSize      int64  `yaml:"multipart_size"`
	MultipartThreshold int64  `yaml:"multipart_threshold"`
	MultipartParallel  int    `yaml:"multipart_parallel"`
	StorageClass       string `yaml:"storage_class"`

	BosfsUID  uint32 `yaml:"bosfs_uid"`
	BosfsGID  uint32 `yaml:"bosfs_gid"`
	BosfsMask uint32 `yaml:"bosfs_mask"`
	MountUmask uint32 `yaml:"mount_umask"`

	AllowOther bool `yaml:"allow_other"`
}

// NewDefaultMountConfig mirrors NewDefault's role for the mount section.
func NewDefaultMountConfig() *MountConfig {
	return &MountConfig{
		CacheDir:           "/var/cache/objectfs",
		TmpDir:             os.TempDir(),
		MetaExpiresSec:     60,
		MetaCapacity:       100000,
		MultipartSize:      8 << 20,
		MultipartThreshold: 64 << 20,
		MultipartParallel:  4,
		StorageClass:       "STANDARD",
		BosfsUID:           safeIntToUint32(os.Getuid()),
		BosfsGID:           safeIntToUint32(os.Getgid()),
		BosfsMask:          0755,
		MountUmask:         0022,
	}
}

func safeIntToUint32(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}

// LoadFromFile loads the mount section from a YAML file.
func (m *MountConfig) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read mount config file: %w", err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to parse mount config file: %w", err)
	}
	return nil
}

// LoadFromEnv overlays OBJECTFS_MOUNT_* environment variables.
func (m *MountConfig) LoadFromEnv() error {
	if v := os.Getenv("OBJECTFS_MOUNT_BUCKET"); v != "" {
		m.Bucket = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_PREFIX"); v != "" {
		m.Prefix = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_POINT"); v != "" {
		m.MountPoint = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_ENDPOINT"); v != "" {
		m.Endpoint = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_AK"); v != "" {
		m.AK = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_SK"); v != "" {
		m.SK = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_STS_TOKEN"); v != "" {
		m.STSToken = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_CACHE_DIR"); v != "" {
		m.CacheDir = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_TMP_DIR"); v != "" {
		m.TmpDir = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_META_EXPIRES_S"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			m.MetaExpiresSec = n
		}
	}
	if v := os.Getenv("OBJECTFS_MOUNT_META_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.MetaCapacity = n
		}
	}
	if v := os.Getenv("OBJECTFS_MOUNT_MULTIPART_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			m.MultipartSize = n
		}
	}
	if v := os.Getenv("OBJECTFS_MOUNT_MULTIPART_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			m.MultipartThreshold = n
		}
	}
	if v := os.Getenv("OBJECTFS_MOUNT_MULTIPART_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			m.MultipartParallel = n
		}
	}
	if v := os.Getenv("OBJECTFS_MOUNT_STORAGE_CLASS"); v != "" {
		m.StorageClass = v
	}
	if v := os.Getenv("OBJECTFS_MOUNT_REMOVE_CACHE"); v != "" {
		m.RemoveCache = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("OBJECTFS_MOUNT_CREATE_BUCKET"); v != "" {
		m.CreateBkt = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("OBJECTFS_MOUNT_ALLOW_OTHER"); v != "" {
		m.AllowOther = strings.ToLower(v) == "true"
	}
	return nil
}

// Validate checks that the mount configuration is internally consistent.
func (m *MountConfig) Validate() error {
	if m.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if m.MountPoint == "" {
		return fmt.Errorf("mountpoint is required")
	}
	if m.MultipartParallel <= 0 {
		return fmt.Errorf("multipart_parallel must be greater than 0")
	}
	if m.MultipartSize <= 0 {
		return fmt.Errorf("multipart_size must be greater than 0")
	}
	if m.MetaCapacity <= 0 {
		return fmt.Errorf("meta_capacity must be greater than 0")
	}
	return nil
}
