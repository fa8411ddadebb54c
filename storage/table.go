package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// TableServiceClient contains operations for Microsoft Azure Table Storage
// Service.
type TableServiceClient struct {
	client *Client
}

const (
	acceptKey        = "Accept"
	noMetadataHeader = "application/json;odata=nometadata"
	jsonContentType  = "application/json"
)

// QueryTablesResponse is the response object returned from QueryTables call
// returning no OData metadata.
type QueryTablesResponse struct {
	Value []struct {
		TableName string `json:"TableName"`
	} `json:"value"`
}

// CreateTableParameters are the set of parameters that can be provided to
// CreateTable call.
type CreateTableParameters struct {
	TableName string `json:"TableName"`
}

// exec builds a Request for path/verb, stamps the table service's base
// headers, and dispatches it through the Client's table Pipeline — the one
// external-collaborator surface this module keeps as a worked example of
// consuming the core.
func (c TableServiceClient) exec(ctx context.Context, verb, path string, body []byte) (*Response, error) {
	req := NewRequest(verb, "/"+path)
	if err := req.SetHeader(acceptKey, noMetadataHeader); err != nil {
		return nil, err
	}
	if body != nil {
		if err := req.SetHeader("Content-Type", jsonContentType); err != nil {
			return nil, err
		}
		if err := req.SetBodyBytes(body); err != nil {
			return nil, err
		}
	}
	return c.client.Do(ctx, tableServiceName, req, ClientOptions{})
}

// QueryTables operation returns a list of tables under the specified account.
//
// This implementation of the operation returns no OData metadata about the
// response contents.
//
// See https://msdn.microsoft.com/en-us/library/azure/dd179405.aspxs
func (c TableServiceClient) QueryTables(ctx context.Context) (QueryTablesResponse, error) {
	var out QueryTablesResponse
	resp, err := c.exec(ctx, "GET", "Tables", nil)
	if err != nil {
		return out, err
	}
	if err := resp.AsError(); err != nil {
		return out, err
	}
	err = json.Unmarshal(resp.Body, &out)
	return out, err
}

// CreateTable operation creates a new table in the storage account.
//
// See https://msdn.microsoft.com/en-us/library/azure/dd135729.aspx
func (c TableServiceClient) CreateTable(ctx context.Context, params CreateTableParameters) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	resp, err := c.exec(ctx, "POST", "Tables", body)
	if err != nil {
		return err
	}
	if err := resp.AsError(); err != nil {
		return err
	}
	return checkRespCode(resp.StatusCode, []int{http.StatusCreated, http.StatusNoContent})
}

// DeleteTable operation deletes the specified table and any data it contains.
//
// See https://msdn.microsoft.com/en-us/library/azure/dd179387.aspx
func (c TableServiceClient) DeleteTable(ctx context.Context, tableName string) error {
	path := fmt.Sprintf("Tables('%s')", tableName)

	resp, err := c.exec(ctx, "DELETE", path, nil)
	if err != nil {
		return err
	}
	if err := resp.AsError(); err != nil {
		return err
	}
	return checkRespCode(resp.StatusCode, []int{http.StatusNoContent})
}

// InsertEntity operation inserts a new entity into a table.
//
// https://msdn.microsoft.com/en-us/library/azure/dd179433.aspx
func (c TableServiceClient) InsertEntity(ctx context.Context, tableName string, entity TableEntity) error {
	if tableName == "" {
		return azureParameterError("tableName")
	}
	if entity == nil {
		return azureParameterError("entity")
	}
	body, err := entity.jsonMarshal()
	if err != nil {
		return err
	}

	resp, err := c.exec(ctx, "POST", tableName, body)
	if err != nil {
		return err
	}
	if err := resp.AsError(); err != nil {
		return err
	}
	return checkRespCode(resp.StatusCode, []int{http.StatusCreated, http.StatusNoContent})
}

// QueryEntity operation queries a single entity in a table.
//
// https://msdn.microsoft.com/en-us/library/azure/dd179433.aspx
func (c TableServiceClient) QueryEntity(ctx context.Context, tableName, partitionKey, rowKey string) (*Response, error) {
	if tableName == "" {
		return nil, azureParameterError("tableName")
	}
	if partitionKey == "" {
		return nil, azureParameterError("partitionKey")
	}
	if rowKey == "" {
		return nil, azureParameterError("rowKey")
	}

	path := fmt.Sprintf("%s(PartitionKey='%s',RowKey='%s')", tableName, partitionKey, rowKey)
	resp, err := c.exec(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	if err := resp.AsError(); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteEntity operation deletes an existing entity in a table.
//
// https://msdn.microsoft.com/en-us/library/azure/dd135727.aspx
func (c TableServiceClient) DeleteEntity(ctx context.Context, tableName, partitionKey, rowKey string) error {
	if tableName == "" {
		return azureParameterError("tableName")
	}
	if partitionKey == "" {
		return azureParameterError("partitionKey")
	}
	if rowKey == "" {
		return azureParameterError("rowKey")
	}

	path := fmt.Sprintf("%s(PartitionKey='%s',RowKey='%s')", tableName, partitionKey, rowKey)
	resp, err := c.exec(ctx, "DELETE", path, nil)
	if err != nil {
		return err
	}
	if err := resp.AsError(); err != nil {
		return err
	}
	return checkRespCode(resp.StatusCode, []int{http.StatusNoContent})
}
