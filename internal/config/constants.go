package config

import "time"

// Application constants - all hardcoded values for the emicli pipeline
const (
	// Application Info
	AppName    = "emicli"
	AppVersion = "0.1.0-alpha.1"

	// Dataset identifiers
	DatasetHydro   = "hydro_storage"
	DatasetFTR     = "ftr_prices"
	DatasetFutures = "futures"

	// EMI hydro storage CSV layout. The files open with a metadata preamble;
	// the header row follows it.
	EMICSVPreambleRows = 9
	HydroDateColumn    = "Date"
	HydroTimeColumn    = "Time"
	HydroStorageColumn = "Active storage (Mm³)"

	// EMI wholesale node CSV layout
	FTRDateColumn  = "Trading date"
	FTRNodeColumn  = "Point of connection"
	FTRPriceColumn = "$/MWh"

	// Network Timeouts
	DefaultFetchTimeout = 2 * time.Minute
	DefaultRunTimeout   = 30 * time.Minute
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// Fetch politeness against the EMI website
	DefaultFetchRateLimit = 2.0 // requests per second
	DefaultFetchBurst     = 1
	DefaultUserAgent      = "emicli/" + AppVersion

	// API rate limiting, per client IP
	DefaultAPIRateLimit = 100.0 // requests per second
	DefaultAPIBurst     = 50

	// File Paths (relative to executable)
	DefaultDataDir = "data"
	DefaultLogsDir = "logs"
	DefaultWebDir  = "web"

	// Scheduler defaults: refresh daily at 06:10 NZ time, after the EMI
	// overnight publication window.
	DefaultRefreshSpec = "10 6 * * *"
	DefaultTimezone    = "Pacific/Auckland"

	// Report file prefixes
	HydroReportPrefix   = "lake_storage"
	FTRReportPrefix     = "ftr_prices"
	FuturesReportPrefix = "futures"
	UnifiedReportPrefix = "unified_series"
	SummaryReportName   = "series_summary"

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// EMI hedge market dashboard; the location and duration query parameters
// select which futures board the chart renders.
const EMIFuturesReportURL = "https://www.emi.ea.govt.nz/Wholesale/Reports/FuturesPrices"
