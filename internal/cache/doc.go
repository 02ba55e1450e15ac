/*
Package cache is the local byte-range cache between the FUSE front end
and the remote object store.

# Components

PageList (pagelist.go) is a sorted run-length index of an object's byte
ranges, each marked loaded (present in the local file) or unloaded (only
in the remote store). After every mutation no two neighbouring ranges
share a state. Serialize and Deserialize convert it to and from its text
form.

StatCacheFile (statcachefile.go) is the on-disk home of a serialized
PageList, under <cache_dir>/.<bucket>.stat/, held under an advisory
flock while open.

CacheEntity (entity.go) owns one path's local file: a persistent file
under <cache_dir>/<bucket>/ (opened through a hard-linked mirror) when a
cache directory is configured, otherwise a tmp file under tmp_dir. Reads
fault unloaded ranges in from the RemoteStore, writes go to the local
file, and Flush uploads the whole file with PutObject below the multipart
threshold or UploadSuperFile at or above it. A disk-space guard returns
ErrNoSpace when a load or a growing write would not fit.

DataCache (datacache.go) is the process-wide path -> CacheEntity
registry that opens, re-keys, closes and deletes entities.

RemoteStore and ObjectMeta (types.go) are the object-store contract the
package consumes; internal/storage/s3.Adapter implements it.

# Concurrency

A PageList has no lock of its own; its CacheEntity guards it. Each
CacheEntity serializes its operations with its own mutex, and DataCache
holds its registry lock only for map access, never across I/O.
*/
package cache
