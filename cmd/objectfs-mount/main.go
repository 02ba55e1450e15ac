// Command objectfs-mount mounts an S3-compatible bucket as a POSIX
// directory tree using FUSE.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"

	"github.com/objectfs/objectfs/internal/adapter"
	"github.com/objectfs/objectfs/internal/config"
)

var (
	configFile   = flag.String("config", "", "YAML configuration file path")
	endpoint     = flag.String("endpoint", "", "service endpoint (defaults to bucket location lookup)")
	ak           = flag.String("ak", "", "access key ID")
	sk           = flag.String("sk", "", "secret access key")
	stsToken     = flag.String("sts_token", "", "session token")
	cacheDir     = flag.String("cache_dir", "", "persistent cache directory (default /var/cache/objectfs); an empty value keeps the default, so tmpfile-only mode cannot be selected here")
	tmpDir       = flag.String("tmp_dir", "", "scratch directory (default /tmp)")
	removeCache  = flag.Bool("remove_cache", false, "wipe cache and stat directories at mount")
	createBucket = flag.Bool("create_bucket", false, "attempt to create the bucket if absent")
	allowOther   = flag.Bool("allow_other", false, "allow access to other users")
	mountUmask   = flag.Uint("mount_umask", 0022, "umask applied to the default mount file/directory mode")
	bosfsUID     = flag.Uint("bosfs_uid", 0, "override uid visible to clients (default: process uid)")
	bosfsGID     = flag.Uint("bosfs_gid", 0, "override gid visible to clients (default: process gid)")
	bosfsMask    = flag.Uint("bosfs_mask", 0755, "override the default file mode visible to clients")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [options] bucket[/prefix] mountpoint\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 2 {
		usage()
		os.Exit(1)
	}
	bucketArg := flag.Arg(0)
	mountPoint := flag.Arg(1)

	if bucketArg == "" {
		fmt.Fprintln(os.Stderr, "error: bucket is required")
		os.Exit(1)
	}

	if err := validateMountPoint(mountPoint); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := config.NewDefault()
	if *configFile != "" {
		if err := cfg.LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := adapter.New(ctx, "s3://"+bucketArg, mountPoint, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	applyFlagOverrides(a)

	if err := a.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := a.Stop(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlagOverrides layers command-line flags over the mount defaults
// and any file/environment configuration already loaded onto a.
func applyFlagOverrides(a *adapter.Adapter) {
	mount := a.MountConfig()
	if *endpoint != "" {
		mount.Endpoint = *endpoint
	}
	if *ak != "" {
		mount.AK = *ak
	}
	if *sk != "" {
		mount.SK = *sk
	}
	if *stsToken != "" {
		mount.STSToken = *stsToken
	}
	if *cacheDir != "" {
		mount.CacheDir = *cacheDir
	}
	if *tmpDir != "" {
		mount.TmpDir = *tmpDir
	}
	if *removeCache {
		mount.RemoveCache = true
	}
	if *createBucket {
		mount.CreateBkt = true
	}
	if *allowOther {
		mount.AllowOther = true
	}
	mount.MountUmask = uint32(*mountUmask)
	if isFlagSet("bosfs_uid") {
		mount.BosfsUID = uint32(*bosfsUID)
	}
	if isFlagSet("bosfs_gid") {
		mount.BosfsGID = uint32(*bosfsGID)
	}
	if isFlagSet("bosfs_mask") {
		mount.BosfsMask = uint32(*bosfsMask)
	}
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// validateMountPoint applies the accessibility rule: the process must
// be root, own the directory, belong to its group with group-rwx set,
// or the directory must be world-rwx.
func validateMountPoint(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("mountpoint %q: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mountpoint %q is not a directory", path)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	uid := os.Getuid()
	if uid == 0 {
		return nil
	}
	mode := info.Mode()
	if uint32(uid) == stat.Uid {
		return nil
	}
	if mode&0070 == 0070 && callerInGroup(uint32(uid), stat.Gid) {
		return nil
	}
	if mode&0007 == 0007 {
		return nil
	}
	return fmt.Errorf("mountpoint %q: permission denied", path)
}

func callerInGroup(uid, gid uint32) bool {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return false
	}
	groupIDs, err := u.GroupIds()
	if err != nil {
		return false
	}
	target := strconv.FormatUint(uint64(gid), 10)
	for _, g := range groupIDs {
		if g == target {
			return true
		}
	}
	return false
}
