package config

import "time"

// Config is the root of the YAML configuration file.
type Config struct {
	Tracker      Tracker  `yaml:"tracker"`
	Project      string   `yaml:"project"`      // default project for "versions" and "options"
	IssueType    string   `yaml:"issueType"`    // issue type used for create metadata
	CustomFields []string `yaml:"customFields"` // custom field names resolved on every issue
	Comment      Comment  `yaml:"comment"`
}

// Tracker holds connection and credential settings.
// Username, Password and BearerToken are references resolved at startup.
type Tracker struct {
	URL           string        `yaml:"url"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	BearerToken   string        `yaml:"bearerToken"`
	SkipTLSVerify bool          `yaml:"skipTLSVerify"`
	Timeout       time.Duration `yaml:"timeout"`
	BatchSize     int           `yaml:"batchSize"`
	CacheSize     int           `yaml:"cacheSize"`
}

// Comment configures the report-link comment kept on issues.
type Comment struct {
	Marker    string `yaml:"marker"`    // text identifying our comment among others
	Template  string `yaml:"template"`  // text/template rendering the comment body
	ReportURL string `yaml:"reportURL"` // base URL of published reports
}
