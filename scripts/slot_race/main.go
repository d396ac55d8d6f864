package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type createRequest struct {
	TeacherID   string `json:"teacher_id"`
	StudentName string `json:"student_name"`
	ClassType   string `json:"class_type"`
	Schedule    string `json:"schedule"`
	Time        string `json:"time"`
}

type attempt struct {
	Student  string
	Status   int
	Code     string
	Duration time.Duration
	Error    error
}

// slot_race fires concurrent exclusive bookings at one slot of a running
// server and fails unless exactly one is admitted.
func main() {
	var (
		base      string
		token     string
		teacherID string
		date      string
		slotTime  string
		classType string
		students  string
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&token, "token", os.Getenv("TUTORCLASS_TOKEN"), "admin bearer token")
	flag.StringVar(&teacherID, "teacher", "", "teacher id owning the slot")
	flag.StringVar(&date, "date", time.Now().AddDate(0, 0, 1).Format("2006-01-02"), "slot date (YYYY-MM-DD)")
	flag.StringVar(&slotTime, "time", "14:00", "slot start time (HH:MM)")
	flag.StringVar(&classType, "type", "Regular", "Regular or Premium")
	flag.StringVar(&students, "students", "", "comma separated student names, one request each")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	names := splitNames(students)
	if teacherID == "" || len(names) < 2 {
		log.Fatal("need -teacher and at least two -students")
	}

	client := &http.Client{Timeout: timeout}
	results := make([]attempt, len(names))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			<-start
			results[i] = book(client, base, token, createRequest{
				TeacherID:   teacherID,
				StudentName: name,
				ClassType:   classType,
				Schedule:    date,
				Time:        slotTime,
			})
		}(i, name)
	}
	close(start)
	wg.Wait()

	admitted := printReport(results)
	if admitted != 1 {
		fmt.Printf("expected exactly one admitted booking, got %d\n", admitted)
		os.Exit(1)
	}
}

func splitNames(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func book(client *http.Client, base, token string, payload createRequest) attempt {
	result := attempt{Student: payload.StudentName}
	if client == nil {
		result.Error = errors.New("nil client")
		return result
	}
	body, err := json.Marshal(payload)
	if err != nil {
		result.Error = err
		return result
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(base, "/")+"/classes", bytes.NewReader(body))
	if err != nil {
		result.Error = err
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := client.Do(req)
	result.Duration = time.Since(started)
	if err != nil {
		result.Error = err
		return result
	}
	defer resp.Body.Close()
	result.Status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Errorf("read body: %w", err)
		return result
	}
	var envelope struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		result.Code = envelope.Error.Code
	}
	return result
}

func printReport(results []attempt) int {
	fmt.Println("Slot Race Report")
	fmt.Println("================")
	sort.Slice(results, func(i, j int) bool { return results[i].Duration < results[j].Duration })
	admitted := 0
	for _, res := range results {
		outcome := res.Code
		switch {
		case res.Error != nil:
			outcome = "ERROR"
		case res.Status == http.StatusCreated:
			outcome = "ADMITTED"
			admitted++
		}
		fmt.Printf("[%s] %s status=%d (%s)\n", outcome, res.Student, res.Status, res.Duration)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		}
	}
	return admitted
}
