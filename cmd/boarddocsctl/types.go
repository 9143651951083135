package main

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type boardsResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Boards  []boardInfo `json:"boards"`
}

type boardInfo struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Desc             string   `json:"desc"`
	HasGeneratedDoc  bool     `json:"has_generated_doc"`
	PreviousHeadings []string `json:"previous_headings"`
}

type diagramInfo struct {
	Diagram string `json:"diagram"`
	Image   string `json:"image,omitempty"`
}

type docResponse struct {
	Status            string                 `json:"status"`
	TemplateName      string                 `json:"template_name"`
	GeneratedDocs     string                 `json:"generated_docs"`
	GeneratedDiagrams map[string]diagramInfo `json:"generated_diagrams"`
	BoardName         string                 `json:"board_name"`
}

type runResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	State  string `json:"state"`
}

type notification struct {
	ID        string `json:"id"`
	BoardID   string `json:"board_id"`
	BoardName string `json:"board_name,omitempty"`
	EventType string `json:"event_type"`
	CardName  string `json:"card_name,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
	Timestamp string `json:"timestamp"`
}

type notificationsResponse struct {
	Status        string         `json:"status"`
	Notifications []notification `json:"notifications"`
}

type webhookResult struct {
	BoardID      string `json:"board_id"`
	BoardName    string `json:"board_name"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	MappingError string `json:"mapping_error,omitempty"`
}

type webhookRegisterResponse struct {
	Status  string          `json:"status"`
	UserID  string          `json:"user_id"`
	Results []webhookResult `json:"results"`
}

type job struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	BoardID      string `json:"boardId"`
	Template     string `json:"template"`
	Trigger      string `json:"trigger"`
	RequestedAt  string `json:"requestedAt"`
	State        string `json:"state"`
	Message      string `json:"message,omitempty"`
	AttemptCount int    `json:"attemptCount"`
	LastError    string `json:"lastError,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty"`
}

type jobsResponse struct {
	Jobs          []job  `json:"jobs"`
	NextPageToken string `json:"nextPageToken"`
	TotalSize     int    `json:"totalSize"`
}
