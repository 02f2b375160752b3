package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskDailyReport = "cascade.report.daily"

// DailyReportPayload addresses one manager's copy of one day's report.
type DailyReportPayload struct {
	ManagerID string `json:"managerId"`
	Day       string `json:"day"`
}

func NewDailyReportTask(payload DailyReportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailyReport, data), nil
}

func ParseDailyReportPayload(task *asynq.Task) (DailyReportPayload, error) {
	var payload DailyReportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DailyReportPayload{}, err
	}
	return payload, nil
}
