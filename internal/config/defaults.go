package config

// DefaultFile is written by Load when no settings file exists yet.
const DefaultFile = `# Broforce Map Downloader settings

# Number of pages to process
number_of_pages: 3

# Number of items per page (9, 18, 30)
maps_per_page: 18

# Time period in days (-1, 1, 7, 90, 180, 365), -1 = All Time
time_period: -1

# Gameplay types to include (see below), e.g. "135" or [standard, story]
gameplay_types: "135"

# Difficulty levels to include (see below)
difficulty_levels: "1"

# Gameplay Type
# ----------------------
# 1 - Standard
# 2 - Puzzle
# 3 - Story
# 4 - Experimental
# 5 - Challenge
# 6 - Deathmatch

# Difficulty
# ----------------------
# 1 - Normal
# 2 - Challenging
# 3 - Brotal

# Where maps are stored, one sub folder per star rating (0-5)
maps_dir: maps

# Download history database, empty to disable
catalog_path: maps/.catalog.db

# Parallel downloads (1 = one after another)
max_concurrent_downloads: 1

# Backoff for failed requests: waits base_delay, then x multiplier, up to max_delay
retry:
  max_attempts: 4
  base_delay: 3s
  multiplier: 2
  max_delay: 30s

request_timeout: 9s

# Random pause between two downloads
download_pause_min: 1s
download_pause_max: 2s

# Save the workshop preview image next to each map
save_previews: false
preview_max_size: 512

# Move re-uploaded copies of the same map into maps/duplicates
handle_duplicates: true

# panic, fatal, error, warn, info, debug, trace
log_level: info
log_file: ""
`
