package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/shurcooL/graphql"
)

// parseTime parses a pg_graphql Datetime, returning zero time on error.
// timestamptz columns carry an offset; plain timestamp columns do not.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// parseID parses a pg_graphql BigInt, which is serialized as a string.
func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

func bigInt(id int64) string {
	return strconv.FormatInt(id, 10)
}

// The input types below are named after the GraphQL types they stand
// for, since the client derives variable types from Go type names.
// pg_graphql is not inflecting table names here (its mutation fields are
// insertIntoissuesCollection and so on), so the type names keep the
// table's lower-case spelling.

// issuesFilter is the filter input for the issues table.
type issuesFilter map[string]interface{}

func (f issuesFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(f))
}

// issuesInsertInput is the insert input for the issues table.
type issuesInsertInput map[string]interface{}

func (i issuesInsertInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(i))
}

// issuesUpdateInput is the update input for the issues table.
type issuesUpdateInput map[string]interface{}

func (i issuesUpdateInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(i))
}

type commentsFilter map[string]interface{}

func (f commentsFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(f))
}

type commentsInsertInput map[string]interface{}

func (c commentsInsertInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(c))
}

const (
	// GraphQLPath is appended to the project URL to reach pg_graphql.
	GraphQLPath = "/graphql/v1"
	// DefaultTimeout bounds every call when ClientConfig.Timeout is zero.
	DefaultTimeout = 30 * time.Second
)

// ClientConfig contains configuration for creating a new Supabase client.
type ClientConfig struct {
	// URL is the Supabase project URL, e.g. https://xyz.supabase.co.
	URL string
	// Key is the service role key, sent as both apikey and bearer token.
	Key string
	// HTTPClient is an optional custom HTTP client (useful for testing).
	HTTPClient *http.Client
	// Timeout bounds each call (defaults to 30s).
	Timeout time.Duration
}

// Client implements Gateway over Supabase's pg_graphql endpoint.
type Client struct {
	endpoint string
	timeout  time.Duration
	client   *graphql.Client
}

var _ Gateway = (*Client)(nil)

// NewClient creates a new Supabase client with the provided configuration.
func NewClient(cfg ClientConfig) *Client {
	endpoint := strings.TrimRight(cfg.URL, "/") + GraphQLPath

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var httpClient *http.Client
	if cfg.HTTPClient != nil {
		httpClient = cfg.HTTPClient
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient.Transport = &authTransport{Key: cfg.Key, Base: base}
	} else {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: &authTransport{Key: cfg.Key, Base: http.DefaultTransport},
		}
	}

	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		client:   graphql.NewClient(endpoint, httpClient),
	}
}

// authTransport adds the Supabase auth headers to requests.
type authTransport struct {
	Key  string
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("apikey", t.Key)
	req.Header.Set("Authorization", "Bearer "+t.Key)
	if t.Base == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.Base.RoundTrip(req)
}

// Endpoint returns the GraphQL endpoint being used.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) query(ctx context.Context, q interface{}, vars map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Query(ctx, q, vars)
}

func (c *Client) mutate(ctx context.Context, m interface{}, vars map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Mutate(ctx, m, vars)
}

type issueNode struct {
	ID          graphql.String  `graphql:"id"`
	Title       *graphql.String `graphql:"title"`
	Description graphql.String  `graphql:"description"`
	Status      *graphql.String `graphql:"status"`
	AssignedTo  *graphql.String `graphql:"assigned_to"`
	Type        *graphql.String `graphql:"type"`
	CreatedAt   graphql.String  `graphql:"created_at"`
	UpdatedAt   *graphql.String `graphql:"updated_at"`
}

func (n issueNode) issue() Issue {
	issue := Issue{
		ID:          parseID(string(n.ID)),
		Description: string(n.Description),
		Status:      StatusPending,
		CreatedAt:   parseTime(string(n.CreatedAt)),
	}
	if n.Title != nil {
		issue.Title = string(*n.Title)
	}
	if n.Status != nil {
		issue.Status = ParseStatus(string(*n.Status))
	}
	if n.AssignedTo != nil {
		issue.AssignedTo = string(*n.AssignedTo)
	}
	if n.Type != nil {
		issue.Workflow = ParseWorkflow(string(*n.Type))
	}
	issue.UpdatedAt = issue.CreatedAt
	if n.UpdatedAt != nil {
		issue.UpdatedAt = parseTime(string(*n.UpdatedAt))
	}
	return issue
}

type commentNode struct {
	ID        graphql.String  `graphql:"id"`
	IssueID   graphql.String  `graphql:"issue_id"`
	Comment   graphql.String  `graphql:"comment"`
	Source    *graphql.String `graphql:"source"`
	CreatedAt graphql.String  `graphql:"created_at"`
}

func (n commentNode) comment() Comment {
	c := Comment{
		ID:        parseID(string(n.ID)),
		IssueID:   parseID(string(n.IssueID)),
		Body:      string(n.Comment),
		CreatedAt: parseTime(string(n.CreatedAt)),
	}
	if n.Source != nil {
		c.Source = string(*n.Source)
	}
	return c
}

func idFilter(id int64) issuesFilter {
	return issuesFilter{"id": map[string]interface{}{"eq": bigInt(id)}}
}

// ListIssues fetches all issues, newest first.
func (c *Client) ListIssues(ctx context.Context) ([]Issue, error) {
	var query struct {
		IssuesCollection struct {
			Edges []struct {
				Node issueNode
			}
		} `graphql:"issuesCollection(orderBy: [{created_at: DescNullsLast}])"`
	}

	if err := c.query(ctx, &query, nil); err != nil {
		logger.ErrorWithErr(err, "gateway: ListIssues failed")
		return nil, classify("list issues", err)
	}

	issues := make([]Issue, 0, len(query.IssuesCollection.Edges))
	for _, edge := range query.IssuesCollection.Edges {
		issues = append(issues, edge.Node.issue())
	}
	logger.Debug("gateway: ListIssues returned count=%d", len(issues))
	return issues, nil
}

// GetIssue fetches one issue and its comments in a single request.
func (c *Client) GetIssue(ctx context.Context, id int64) (Issue, []Comment, error) {
	var query struct {
		IssuesCollection struct {
			Edges []struct {
				Node issueNode
			}
		} `graphql:"issuesCollection(filter: $filter, first: 1)"`
		CommentsCollection struct {
			Edges []struct {
				Node commentNode
			}
		} `graphql:"commentsCollection(filter: $commentFilter, orderBy: [{created_at: DescNullsLast}])"`
	}

	variables := map[string]interface{}{
		"filter":        idFilter(id),
		"commentFilter": commentsFilter{"issue_id": map[string]interface{}{"eq": bigInt(id)}},
	}

	if err := c.query(ctx, &query, variables); err != nil {
		logger.ErrorWithErr(err, "gateway: GetIssue failed for issue %d", id)
		return Issue{}, nil, classify(fmt.Sprintf("get issue %d", id), err)
	}
	if len(query.IssuesCollection.Edges) == 0 {
		return Issue{}, nil, fmt.Errorf("get issue %d: %w", id, ErrNotFound)
	}

	comments := make([]Comment, 0, len(query.CommentsCollection.Edges))
	for _, edge := range query.CommentsCollection.Edges {
		comments = append(comments, edge.Node.comment())
	}
	return query.IssuesCollection.Edges[0].Node.issue(), comments, nil
}

// CreateIssue inserts a new pending issue.
func (c *Client) CreateIssue(ctx context.Context, description, title string) (Issue, error) {
	description, err := NormalizeDescription(description)
	if err != nil {
		return Issue{}, fmt.Errorf("create issue: %w", err)
	}
	title, err = NormalizeTitle(title)
	if err != nil {
		return Issue{}, fmt.Errorf("create issue: %w", err)
	}

	var mutation struct {
		InsertIntoIssuesCollection struct {
			AffectedCount graphql.Int `graphql:"affectedCount"`
			Records       []issueNode `graphql:"records"`
		} `graphql:"insertIntoissuesCollection(objects: $objects)"`
	}

	input := issuesInsertInput{
		"description": description,
		"status":      string(StatusPending),
	}
	if title != "" {
		input["title"] = title
	}
	variables := map[string]interface{}{
		"objects": []issuesInsertInput{input},
	}

	if err := c.mutate(ctx, &mutation, variables); err != nil {
		logger.ErrorWithErr(err, "gateway: CreateIssue failed")
		return Issue{}, classify("create issue", err)
	}
	if len(mutation.InsertIntoIssuesCollection.Records) == 0 {
		logger.Error("gateway: CreateIssue returned no records")
		return Issue{}, fmt.Errorf("create issue: %w: no record returned", ErrTransport)
	}

	issue := mutation.InsertIntoIssuesCollection.Records[0].issue()
	logger.Info("gateway: created issue id=%d", issue.ID)
	return issue, nil
}

// DeleteIssue removes an issue. Its comments go with it via the
// backend's cascade.
func (c *Client) DeleteIssue(ctx context.Context, id int64) error {
	var mutation struct {
		DeleteFromIssuesCollection struct {
			AffectedCount graphql.Int `graphql:"affectedCount"`
		} `graphql:"deleteFromissuesCollection(filter: $filter, atMost: 1)"`
	}

	variables := map[string]interface{}{
		"filter": idFilter(id),
	}

	if err := c.mutate(ctx, &mutation, variables); err != nil {
		logger.ErrorWithErr(err, "gateway: DeleteIssue failed for issue %d", id)
		return classify(fmt.Sprintf("delete issue %d", id), err)
	}
	if mutation.DeleteFromIssuesCollection.AffectedCount == 0 {
		return fmt.Errorf("delete issue %d: %w", id, ErrNotFound)
	}
	logger.Info("gateway: deleted issue id=%d", id)
	return nil
}

// UpdateStatus changes the status only if the stored value still equals
// expected.
func (c *Client) UpdateStatus(ctx context.Context, id int64, expected, next Status) (Issue, error) {
	if err := CheckStatus(next); err != nil {
		return Issue{}, fmt.Errorf("update status %d: %w", id, err)
	}

	issue, err := c.updateIfStatus(ctx, fmt.Sprintf("update status %d", id), id, expected, issuesUpdateInput{"status": string(next)})
	if err != nil {
		return Issue{}, err
	}
	logger.Info("gateway: issue %d status %s -> %s", id, expected, next)
	return issue, nil
}

// UpdateAssignment sets or, with an empty worker, clears the assigned
// worker of a pending issue.
func (c *Client) UpdateAssignment(ctx context.Context, id int64, worker string) (Issue, error) {
	if err := CheckWorker(worker); err != nil {
		return Issue{}, fmt.Errorf("update assignment %d: %w", id, err)
	}

	var value interface{}
	if worker != "" {
		value = worker
	}
	issue, err := c.updateIfStatus(ctx, fmt.Sprintf("update assignment %d", id), id, StatusPending, issuesUpdateInput{"assigned_to": value})
	if err != nil {
		return Issue{}, err
	}
	logger.Info("gateway: issue %d assigned to %q", id, worker)
	return issue, nil
}

// UpdateWorkflow sets or clears the workflow of a pending issue.
func (c *Client) UpdateWorkflow(ctx context.Context, id int64, workflow Workflow) (Issue, error) {
	if err := CheckWorkflow(workflow); err != nil {
		return Issue{}, fmt.Errorf("update workflow %d: %w", id, err)
	}

	var value interface{}
	if workflow != WorkflowNone {
		value = string(workflow)
	}
	issue, err := c.updateIfStatus(ctx, fmt.Sprintf("update workflow %d", id), id, StatusPending, issuesUpdateInput{"type": value})
	if err != nil {
		return Issue{}, err
	}
	logger.Info("gateway: issue %d workflow %q", id, workflow)
	return issue, nil
}

// updateIfStatus applies set only while the stored status equals
// expected. A miss costs a second request: pg_graphql's Mutation type
// has no collection reads, so telling a conflict from a vanished row
// needs a follow-up query. The matched path is a single request.
func (c *Client) updateIfStatus(ctx context.Context, op string, id int64, expected Status, set issuesUpdateInput) (Issue, error) {
	filter := idFilter(id)
	filter["status"] = map[string]interface{}{"eq": string(expected)}

	issue, err := c.update(ctx, filter, set)
	if err != nil {
		logger.ErrorWithErr(err, "gateway: %s failed", op)
		return Issue{}, classify(op, err)
	}
	if issue != nil {
		return *issue, nil
	}

	current, _, err := c.GetIssue(ctx, id)
	if err != nil {
		return Issue{}, fmt.Errorf("%s: %w", op, err)
	}
	logger.Warning("gateway: %s conflict expected=%s actual=%s", op, expected, current.Status)
	return Issue{}, fmt.Errorf("%s: %w: status is %s, not %s", op, ErrConflict, current.Status, expected)
}

// UpdateDescription replaces an issue's description.
func (c *Client) UpdateDescription(ctx context.Context, id int64, description string) (Issue, error) {
	description, err := NormalizeDescription(description)
	if err != nil {
		return Issue{}, fmt.Errorf("update description %d: %w", id, err)
	}

	issue, err := c.update(ctx, idFilter(id), issuesUpdateInput{"description": description})
	if err != nil {
		logger.ErrorWithErr(err, "gateway: UpdateDescription failed for issue %d", id)
		return Issue{}, classify(fmt.Sprintf("update description %d", id), err)
	}
	if issue == nil {
		return Issue{}, fmt.Errorf("update description %d: %w", id, ErrNotFound)
	}
	return *issue, nil
}

// update runs a single-row update. A nil issue means no row matched.
func (c *Client) update(ctx context.Context, filter issuesFilter, set issuesUpdateInput) (*Issue, error) {
	var mutation struct {
		UpdateIssuesCollection struct {
			AffectedCount graphql.Int `graphql:"affectedCount"`
			Records       []issueNode `graphql:"records"`
		} `graphql:"updateissuesCollection(set: $set, filter: $filter, atMost: 1)"`
	}

	variables := map[string]interface{}{
		"set":    set,
		"filter": filter,
	}
	if err := c.mutate(ctx, &mutation, variables); err != nil {
		return nil, err
	}
	if len(mutation.UpdateIssuesCollection.Records) == 0 {
		return nil, nil
	}
	issue := mutation.UpdateIssuesCollection.Records[0].issue()
	return &issue, nil
}

// CreateComment adds a comment to an issue.
func (c *Client) CreateComment(ctx context.Context, issueID int64, body string) (Comment, error) {
	body, err := NormalizeComment(body)
	if err != nil {
		return Comment{}, fmt.Errorf("create comment: %w", err)
	}

	var mutation struct {
		InsertIntoCommentsCollection struct {
			AffectedCount graphql.Int   `graphql:"affectedCount"`
			Records       []commentNode `graphql:"records"`
		} `graphql:"insertIntocommentsCollection(objects: $objects)"`
	}

	variables := map[string]interface{}{
		"objects": []commentsInsertInput{{
			"issue_id": bigInt(issueID),
			"comment":  body,
			"source":   "tui",
		}},
	}

	if err := c.mutate(ctx, &mutation, variables); err != nil {
		logger.ErrorWithErr(err, "gateway: CreateComment failed for issue %d", issueID)
		if isForeignKeyViolation(err) {
			return Comment{}, fmt.Errorf("create comment on %d: %w", issueID, ErrNotFound)
		}
		return Comment{}, classify(fmt.Sprintf("create comment on %d", issueID), err)
	}
	if len(mutation.InsertIntoCommentsCollection.Records) == 0 {
		return Comment{}, fmt.Errorf("create comment on %d: %w: no record returned", issueID, ErrTransport)
	}
	return mutation.InsertIntoCommentsCollection.Records[0].comment(), nil
}

// isForeignKeyViolation recognises pg_graphql's error text for an insert
// that references a missing parent row.
func isForeignKeyViolation(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return strings.Contains(err.Error(), "foreign key constraint")
}
