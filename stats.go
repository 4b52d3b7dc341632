package vulnlab

// Stats summarizes a snapshot for dashboards.
type Stats struct {
	Total           int            `json:"total"`
	Running         int            `json:"running"`
	WithExploit     int            `json:"with_exploit"`
	WithLocalImages int            `json:"with_images"`
	Categories      map[string]int `json:"categories"`
}

// ComputeStats tallies a snapshot.
func ComputeStats(s Snapshot) Stats {
	st := Stats{Categories: make(map[string]int)}
	for _, e := range s {
		st.Total++
		if e.Status == StatusRunning {
			st.Running++
		}
		if e.HasExploit {
			st.WithExploit++
		}
		if e.HasLocalImages {
			st.WithLocalImages++
		}
		st.Categories[e.Category]++
	}
	return st
}
