package models

type Explanation struct {
	Title            string `json:"title"`
	Summary          string `json:"summary"`
	RemediationShort string `json:"remediation_short"`
}

type ExplainRequest struct {
	VulnText string `json:"vuln_text"`
}

type ExplainResponse struct {
	Result *Explanation `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}
