package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

const (
	MimeImage = "image/"
	MimeCSV   = "text/csv"
	MimeHTML  = "text/html"
	MimeJSON  = "application/json"
)

var (
	AllowedSheetExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}
	AllowedKeyExtensions   = []string{".csv", ".json"}
)
