// Provides platform-appropriate paths for nextiso.
//
// Paths follow XDG conventions on Linux and platform-native conventions on
// macOS. Downloaded assets live under the cache directory, finished images
// under the data directory, and per-build scratch space under the state
// directory, so that clearing the cache never loses a finished image.
package paths
