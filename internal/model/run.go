package model

import "time"

// Run is one completed Lightkeeper run on a pull request
type Run struct {
	ID          string        `json:"id"`
	Repo        string        `json:"repo"`
	PullNumber  int           `json:"pullNumber"`
	Branch      string        `json:"branch"`
	SHA         string        `json:"sha"`
	Conclusion  string        `json:"conclusion"`
	ErrorsFound int           `json:"errorsFound"`
	URLCount    int           `json:"urlCount"`
	CreatedAt   time.Time     `json:"createdAt"`
	Routes      []RouteResult `json:"routes,omitempty"`
}

// RouteResult holds the outcome totals of one audited URL
type RouteResult struct {
	URL      string `json:"url"`
	Improved int    `json:"improved"`
	Passed   int    `json:"passed"`
	Warned   int    `json:"warned"`
	Failed   int    `json:"failed"`
}
