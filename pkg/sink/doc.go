// Package sink persists resolved gift records.
//
// Two tables are written: owners (gift ID, owner) and valid links (gift ID,
// canonical URL). CSVSink writes two CSV files; SQLiteSink writes two tables
// of one database. Both reject records that do not advance the ID and make
// buffered records durable on Flush.
package sink
