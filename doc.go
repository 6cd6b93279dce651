// Package nebulabulk ingests very large bulk export results (CSV files
// produced by bulk query APIs such as Salesforce Bulk API 2.0) with memory
// that stays flat no matter how many rows the export has.
//
// # Architecture
//
// An export flows through three stages:
//
//  1. pkg/download streams the result behind a result reference
//     (https://, s3://bucket/key, gs://bucket/object) to a staging file,
//     undoing any Content-Encoding on the way, and detects the text
//     encoding from a bounded prefix.
//  2. pkg/chunkreader reads the staging file in fixed-size chunks, carries
//     partial lines across chunk boundaries and yields one row at a time.
//  3. pkg/bulkexport composes the two and removes the staging file on every
//     exit path: exhaustion, error, early Close or the end of ForEach.
//
// Only the chunk buffer, the carry and the current row are resident, so
// peak memory is bounded by the chunk size and the longest row.
//
// # Quick Start
//
//	cfg := config.NewConfig("account")
//	p, err := bulkexport.New(cfg, logger.Get())
//	if err != nil {
//	    return err
//	}
//	err = p.ForEach(ctx, download.ResultRef(resultURL), func(row chunkreader.Row) error {
//	    fmt.Println(row["Id"])
//	    return nil
//	})
//
// or from the command line:
//
//	nebula-bulk fetch https://example.my.salesforce.com/.../results --trace-memory
//
// # Errors
//
// Every failure is a *errors.Error of one type: transfer, remote result,
// storage, read or parse. Parse errors carry the byte offset of the
// offending quote (errors.Offset). Nothing is retried internally.
//
// # Configuration
//
// pkg/config holds the YAML configuration (download, reader, http, s3, gcs,
// logging, observability). Environment variables are supported with
// ${VAR_NAME} syntax in files and NEBULA_BULK_* variables on the CLI.
package nebulabulk
