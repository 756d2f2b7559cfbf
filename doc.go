// Package harmonica resolves tidal harmonic constituents from global gridded
// tide atlases.
//
// The package serves two primary use cases:
//
//  1. Programmatic API via the Manager interface - Applications can use
//     NewManager to look up the amplitude, phase, and speed of constituents
//     at any point, and to pre-position or evict atlas files.
//
//  2. Embeddable CLI via NewCommand - Parent CLI tools can attach the
//     "constituents", "download", "resources" and "models" commands to their
//     Cobra root command.
//
// # Atlases
//
// The supported atlases (tpxo7, tpxo8, tpxo9) are described by a static
// Catalog. Each model lists its constituents in groups of files that share a
// grid resolution. Only the groups needed by a request are fetched and opened.
//
// # Storage
//
// Atlas files are cached under {data dir}/{model}/{relative path}:
//   - Linux: $XDG_DATA_HOME/harmonica/data/ or ~/.local/share/harmonica/data/
//   - macOS: ~/Library/Application Support/harmonica/data/
//   - Windows: %APPDATA%\harmonica\data\
//
// The location can be overridden via Config.DataDir or the HARMONICA_DATA_DIR
// environment variable. A read-only Config.PreExistingDataDir with the same
// layout is consulted before the cache and before any network access.
//
// # Datasets
//
// Atlas files are read as netCDF classic files. netCDF-4 distributions must be
// converted first, for example with "nccopy -k classic in.nc out.nc".
package harmonica
