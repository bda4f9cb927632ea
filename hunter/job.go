package hunter

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Job is one discovered job record.
type Job struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Company     string `json:"company" yaml:"company"`
	URL         string `json:"job_url" yaml:"job_url"`
	Location    string `json:"location,omitempty" yaml:"location,omitempty"`
	DatePosted  string `json:"date_posted,omitempty" yaml:"date_posted,omitempty"`
	ATSProvider string `json:"ats_provider,omitempty" yaml:"ats_provider,omitempty"`
}

// AllowedATSProviders is the strict allowlist of application platforms the
// agent knows how to drive.
var AllowedATSProviders = []string{
	"greenhouse.io",
	"lever.co",
	"ashbyhq.com",
}

// JobID derives a stable identity from company and title, so the same
// posting seen twice dedupes regardless of source.
func JobID(company, title string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(company)) + "|" + strings.ToLower(strings.TrimSpace(title))))
	return hex.EncodeToString(sum[:])
}

// ProviderFromURL returns the matching ATS provider for a job URL, or ""
// when the host is not on the allowlist.
func ProviderFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for _, provider := range AllowedATSProviders {
		if host == provider || strings.HasSuffix(host, "."+provider) {
			return provider
		}
	}
	return ""
}

// SortJobs orders records by posting date, then ID for a stable tiebreak.
// Sources backed by unordered storage apply this so every batch is
// deterministic.
func SortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].DatePosted != jobs[j].DatePosted {
			return jobs[i].DatePosted < jobs[j].DatePosted
		}
		return jobs[i].ID < jobs[j].ID
	})
}

// FilterByATS keeps only jobs hosted on an allowed ATS, stamping the
// provider onto each surviving record. Records without an ID get one.
func FilterByATS(jobs []Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		provider := ProviderFromURL(job.URL)
		if provider == "" {
			continue
		}
		job.ATSProvider = provider
		if job.ID == "" {
			job.ID = JobID(job.Company, job.Title)
		}
		out = append(out, job)
	}
	return out
}
