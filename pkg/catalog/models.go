package catalog

// App is one catalog entry, keyed by its Android package name.
type App struct {
	PackageName string
	Name        string
	Description *string
	IconKey     *string
	CreatedAt   string
	UpdatedAt   string
}

// Version is one uploaded artifact of an App. The (PackageName, VersionCode)
// pair is unique; VersionCode is chosen by the upload author.
type Version struct {
	ID          int64
	PackageName string
	VersionCode int64
	VersionName string
	APKKey      string
	Size        int64
	SHA256      string
	MinSDK      int64
	UploadedAt  string
}
