package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

func TestList_EncodesFilters(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(taskdesk.Page[taskdesk.WorkItem]{
			Count:   1,
			Results: []taskdesk.WorkItem{{ID: 1, Title: "fix the build", Status: taskdesk.StatusCreated}},
		})
	}))
	defer srv.Close()

	svc := New(srv.URL)
	page, err := svc.List(context.Background(), taskdesk.ListFilters{
		Page:     2,
		PageSize: 25,
		Status:   taskdesk.StatusInProgress,
		Search:   "build",
		Client:   9,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotPath != "/tasks/" {
		t.Fatalf("path = %q", gotPath)
	}
	want := "client=9&page=2&page_size=25&search=build&status=in_progress"
	if gotQuery != want {
		t.Fatalf("query = %q, want %q", gotQuery, want)
	}
	if page.Count != 1 || len(page.Results) != 1 || page.Results[0].ID != 1 {
		t.Fatalf("page = %+v", page)
	}
}

func TestList_DefaultsPageSize(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(taskdesk.Page[taskdesk.WorkItem]{})
	}))
	defer srv.Close()

	svc := New(srv.URL, WithPageSize(50))
	if _, err := svc.List(context.Background(), taskdesk.ListFilters{}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if gotQuery != "page_size=50" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/42/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(taskdesk.WorkItem{ID: 42, Title: "deploy", Status: taskdesk.StatusDone})
	}))
	defer srv.Close()

	item, err := New(srv.URL).Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.ID != 42 || item.Status != taskdesk.StatusDone {
		t.Fatalf("item = %+v", item)
	}
}

func TestCreate_SendsDraft(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(taskdesk.WorkItem{ID: 5, Title: "new task", Status: taskdesk.StatusCreated})
	}))
	defer srv.Close()

	clientID := int64(3)
	item, err := New(srv.URL).Create(context.Background(), taskdesk.WorkItemDraft{
		Title:    "new task",
		Priority: "high",
		ClientID: &clientID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if item.ID != 5 {
		t.Fatalf("item = %+v", item)
	}
	if gotBody["title"] != "new task" || gotBody["client_id"] != float64(3) {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestChangeStatus_PostsStatusAndComment(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	err := New(srv.URL).ChangeStatus(context.Background(), 7, taskdesk.StatusDone, "reviewed and merged")
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if gotPath != "/tasks/7/status/" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["status"] != "done" || gotBody["comment"] != "reviewed and merged" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestChangeStatus_RejectionCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Transition not allowed from current state"}`))
	}))
	defer srv.Close()

	err := New(srv.URL).ChangeStatus(context.Background(), 7, taskdesk.StatusArchived, "")
	apiErr, ok := taskdesk.AsAPIError(err)
	if !ok {
		t.Fatalf("err = %v, want *taskdesk.APIError", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Detail != "Transition not allowed from current state" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/7/history/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"id":1,"field":"status","old_value":"created","new_value":"in_progress","user_id":2}]`))
	}))
	defer srv.Close()

	entries, err := New(srv.URL).History(context.Background(), 7)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 || entries[0].Field != "status" || entries[0].NewValue != "in_progress" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestAssign_PostsAssigneeIDs(t *testing.T) {
	var gotPath string
	var gotBody assignRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	if err := New(srv.URL).Assign(context.Background(), 7, []int64{2, 5}); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if gotPath != "/tasks/7/assign/" {
		t.Fatalf("path = %q", gotPath)
	}
	if len(gotBody.AssigneeIDs) != 2 || gotBody.AssigneeIDs[0] != 2 || gotBody.AssigneeIDs[1] != 5 {
		t.Fatalf("body = %+v", gotBody)
	}
}
