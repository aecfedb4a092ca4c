// Package confloader loads server configuration through koanf.
//
// Sources layer in priority order: environment variables (MESHSYNC_*)
// override the YAML config file, which overrides the compiled-in
// defaults. A Watcher rebuilds on file changes for the settings that
// can take effect at runtime.
package confloader
