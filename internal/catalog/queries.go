package catalog

// Query ids of the default catalog.
const (
	ProcessList      = "processlist"
	InnoDBStatus     = "innodb_status"
	Blocks           = "blocks"
	CurrentWait      = "current_wait"
	MDL              = "mdl"
	ConcurrentTicket = "concurrent_ticket"
	StatementDigest  = "statement_digest"
	FileIO           = "file_io"
	BufferPool       = "buffer_pool"
)

const (
	queryProcessList  = "SHOW FULL PROCESSLIST;"
	queryInnoDBStatus = "SHOW ENGINE INNODB STATUS;"

	// information_schema.innodb_lock_waits only exists in MySQL 5.7.
	queryBlocks57 = "SELECT r.trx_mysql_thread_id waiting_thread, r.trx_query waiting_query, concat(timestampdiff(SECOND, r.trx_wait_started, CURRENT_TIMESTAMP()), 's') AS duration, b.trx_mysql_thread_id blocking_thread, t.processlist_command state, b.trx_query blocking_current_query, e.sql_text blocking_last_query FROM information_schema.innodb_lock_waits w JOIN information_schema.innodb_trx b ON b.trx_id = w.blocking_trx_id JOIN information_schema.innodb_trx r ON r.trx_id = w.requesting_trx_id JOIN performance_schema.threads t on t.processlist_id = b.trx_mysql_thread_id JOIN performance_schema.events_statements_current e USING(thread_id); "

	// 8.0 moved lock waits to performance_schema.data_lock_waits.
	queryBlocks80 = "SELECT r.trx_mysql_thread_id waiting_thread, r.trx_query waiting_query, concat(timestampdiff(SECOND, r.trx_wait_started, CURRENT_TIMESTAMP()), 's') AS duration, b.trx_mysql_thread_id blocking_thread, t.processlist_command state, b.trx_query blocking_current_query, e.sql_text blocking_last_query FROM performance_schema.data_lock_waits w JOIN information_schema.innodb_trx b ON b.trx_id = w.blocking_engine_transaction_id JOIN information_schema.innodb_trx r ON r.trx_id = w.requesting_engine_transaction_id JOIN performance_schema.threads t on t.processlist_id = b.trx_mysql_thread_id JOIN performance_schema.events_statements_current e USING(thread_id); "

	queryMDL = "SELECT OBJECT_TYPE, OBJECT_SCHEMA, OBJECT_NAME, LOCK_TYPE, LOCK_STATUS, THREAD_ID, PROCESSLIST_ID, PROCESSLIST_INFO FROM performance_schema.metadata_locks INNER JOIN performance_schema.threads ON THREAD_ID = OWNER_THREAD_ID WHERE PROCESSLIST_ID<> CONNECTION_ID(); "

	queryCurrentWait = "select sys.format_time(SuM(TIMER_WAIT)) as TIMER_WAIT_SEC, sys.format_bytes(SUM(NUMBER_OF_BYTES)) as NUMBER_OF_BYTES, EVENT_NAME, OPERATION from performance_schema.events_waits_current where EVENT_NAME != 'idle' group by EVENT_NAME,OPERATION order by TIMER_WAIT_SEC desc; "

	// FORMAT_PICO_TIME replaces sys.format_time from 8.0.16 on.
	queryStatementDigest80 = "SELECT SCHEMA_NAME, DIGEST_TEXT, COUNT_STAR, FORMAT_PICO_TIME(SUM_TIMER_WAIT) AS TOTAL_LATENCY, FORMAT_PICO_TIME(AVG_TIMER_WAIT) AS AVG_LATENCY, SUM_ROWS_EXAMINED, SUM_ROWS_SENT, SUM_NO_INDEX_USED, FIRST_SEEN, LAST_SEEN FROM performance_schema.events_statements_summary_by_digest ORDER BY SUM_TIMER_WAIT DESC LIMIT 20; "
	queryStatementDigest   = "SELECT SCHEMA_NAME, DIGEST_TEXT, COUNT_STAR, sys.format_time(SUM_TIMER_WAIT) AS TOTAL_LATENCY, sys.format_time(AVG_TIMER_WAIT) AS AVG_LATENCY, SUM_ROWS_EXAMINED, SUM_ROWS_SENT, SUM_NO_INDEX_USED, FIRST_SEEN, LAST_SEEN FROM performance_schema.events_statements_summary_by_digest ORDER BY SUM_TIMER_WAIT DESC LIMIT 20; "

	queryFileIO = "SELECT FILE_NAME, EVENT_NAME, COUNT_READ, COUNT_WRITE, sys.format_bytes(SUM_NUMBER_OF_BYTES_READ) AS TOTAL_READ, sys.format_bytes(SUM_NUMBER_OF_BYTES_WRITE) AS TOTAL_WRITTEN, sys.format_time(SUM_TIMER_WAIT) AS TOTAL_LATENCY FROM performance_schema.file_summary_by_instance ORDER BY SUM_TIMER_WAIT DESC LIMIT 20; "

	queryBufferPool = "SELECT POOL_ID, POOL_SIZE, FREE_BUFFERS, DATABASE_PAGES, OLD_DATABASE_PAGES, MODIFIED_DATABASE_PAGES, PENDING_READS, PENDING_FLUSH_LRU, PENDING_FLUSH_LIST, HIT_RATE, PAGES_MADE_YOUNG_RATE, PAGES_NOT_MADE_YOUNG_RATE FROM information_schema.INNODB_BUFFER_POOL_STATS ORDER BY POOL_ID; "
)

// Default returns the built-in diagnostic catalog. Lock waits are only
// resolvable on MySQL 5.7 and 8.0+.
func Default() *Catalog {
	return MustNew(
		DiagnosticQuery{
			ID: ProcessList, Title: "SHOW PROCESSLIST", FileName: "processlist.csv",
			Variants: []Variant{{When: Any(), SQL: queryProcessList}},
		},
		DiagnosticQuery{
			ID: InnoDBStatus, Title: "SHOW ENGINE INNODB STATUS", FileName: "innodb_status.log", Raw: true,
			Variants: []Variant{{When: Any(), SQL: queryInnoDBStatus}},
		},
		DiagnosticQuery{
			ID: Blocks, Title: "SHOW CURRENT BLOCKINGS", FileName: "blocks.csv",
			Variants: []Variant{
				{When: All(AtLeast("5.7.0"), Below("8.0.0")), SQL: queryBlocks57},
				{When: AtLeast("8.0.0"), SQL: queryBlocks80},
			},
		},
		DiagnosticQuery{
			ID: CurrentWait, Title: "SHOW CURRENT WAITING EVENTS", FileName: "current_wait.csv",
			Variants: []Variant{{When: Any(), SQL: queryCurrentWait}},
		},
		DiagnosticQuery{
			ID: MDL, Title: "SHOW CURRENT MDL", FileName: "mdl.csv",
			Variants: []Variant{{When: Any(), SQL: queryMDL}},
		},
		DiagnosticQuery{
			ID: ConcurrentTicket, Title: "SHOW CONCURRENT TICKETS", FileName: "concurrent_ticket.csv",
			Variants: []Variant{{When: Any(), SQL: queryMDL}},
		},
		DiagnosticQuery{
			ID: StatementDigest, Title: "SHOW TOP STATEMENT DIGESTS", FileName: "statement_digest.csv",
			Variants: []Variant{
				{When: AtLeast("8.0.16"), SQL: queryStatementDigest80},
				{When: Any(), SQL: queryStatementDigest},
			},
		},
		DiagnosticQuery{
			ID: FileIO, Title: "SHOW FILE IO LATENCY", FileName: "file_io.csv",
			Variants: []Variant{{When: Any(), SQL: queryFileIO}},
		},
		DiagnosticQuery{
			ID: BufferPool, Title: "SHOW BUFFER POOL STATS", FileName: "buffer_pool.csv",
			Variants: []Variant{{When: Any(), SQL: queryBufferPool}},
		},
	)
}
