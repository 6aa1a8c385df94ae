package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	// Register general tasks
	RegisterHandler(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)

	// Register payment tasks
	RegisterHandler(RetryWebhookEventsTask.TaskID(), RetryWebhookEventsTask.HandleExecution)
	RegisterHandler(SyncPaymentStatusesTask.TaskID(), SyncPaymentStatusesTask.HandleExecution)
	RegisterHandler(ExpireBillSplitsTask.TaskID(), ExpireBillSplitsTask.HandleExecution)
	RegisterHandler(ProcessApprovedRefundsTask.TaskID(), ProcessApprovedRefundsTask.HandleExecution)
	RegisterHandler(DistributePooledTipsTask.TaskID(), DistributePooledTipsTask.HandleExecution)

	// Register notification tasks
	RegisterHandler(SendSplitRemindersTask.TaskID(), SendSplitRemindersTask.HandleExecution)
}
