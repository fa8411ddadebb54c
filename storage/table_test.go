package storage

import (
	"context"
	"fmt"

	chk "gopkg.in/check.v1"
)

type StorageTableSuite struct{}

var _ = chk.Suite(&StorageTableSuite{})

const tableTestPrefix = "zzzzztest"

func randTableName() string { return tableTestPrefix + randString(10) }

func getTableClient(c *chk.C) TableServiceClient {
	return getBasicClient(c).GetTableService()
}

func (s *StorageTableSuite) SetUpSuite(c *chk.C) {
	// delete ALL tables (clean start)
	cli := getTableClient(c)
	ctx := context.Background()
	r, err := cli.QueryTables(ctx)
	c.Assert(err, chk.IsNil)
	for _, v := range r.Value {
		c.Assert(cli.DeleteTable(ctx, v.TableName), chk.IsNil)
	}
}

func (s *StorageTableSuite) TestQueryTables(c *chk.C) {
	cli := getTableClient(c)

	_, err := cli.QueryTables(context.Background())
	c.Assert(err, chk.IsNil)
}

func (s *StorageTableSuite) TestQueryTables_withResults(c *chk.C) {
	cli := getTableClient(c)
	ctx := context.Background()
	const n = 5
	for i := 0; i < n; i++ {
		c.Assert(cli.CreateTable(ctx, CreateTableParameters{TableName: randTableName()}), chk.IsNil)
	}

	r, err := cli.QueryTables(ctx)
	c.Assert(err, chk.IsNil)
	c.Assert(len(r.Value) >= n, chk.Equals, true)
}

func (s *StorageTableSuite) TestCreateTable(c *chk.C) {
	cli := getTableClient(c)
	ctx := context.Background()
	name := randTableName()

	c.Assert(cli.CreateTable(ctx, CreateTableParameters{TableName: name}), chk.IsNil)
	defer cli.DeleteTable(ctx, name)
}

func (s *StorageTableSuite) TestDeleteTable(c *chk.C) {
	cli := getTableClient(c)
	ctx := context.Background()
	name := randTableName()

	c.Assert(cli.CreateTable(ctx, CreateTableParameters{TableName: name}), chk.IsNil)
	c.Assert(cli.DeleteTable(ctx, name), chk.IsNil)
}

func (s *StorageTableSuite) TestDeleteEntity_nonExistingEntity(c *chk.C) {
	cli := getTableClient(c)
	ctx := context.Background()
	name := randTableName()
	c.Assert(cli.CreateTable(ctx, CreateTableParameters{TableName: name}), chk.IsNil)
	defer cli.DeleteTable(ctx, name)

	pk, rk := randString(10), randString(10)
	err := cli.DeleteEntity(ctx, name, pk, rk)
	c.Assert(err, chk.NotNil)

	se, ok := err.(*StorageError)
	c.Assert(ok, chk.Equals, true)
	c.Assert(se.StatusCode, chk.Equals, 404)
}

func (s *StorageTableSuite) TestInsertEntity_map_QueryEntity(c *chk.C) {
	cli := getTableClient(c)
	ctx := context.Background()
	tbl := randTableName()
	c.Assert(cli.CreateTable(ctx, CreateTableParameters{TableName: tbl}), chk.IsNil)
	defer cli.DeleteTable(ctx, tbl)

	m := map[string]interface{}{
		"PartitionKey":        randString(5) + "-" + randString(5),
		"RowKey":              randString(10),
		"GuidVal":             "c9da6455-213d-42c9-9a79-3e9149a57833",
		"GuidVal@odata.type":  "Edm.Guid",
		"BoolVal":             true,
		"Int32Val":            42,
		"Int64Val":            "9223372036854775807",
		"Int64Val@odata.type": "Edm.Int64",
		"TimeVal":             "2013-08-22T01:12:06.2608595Z",
		"TimeVal@odata.type":  "Edm.DateTime",
	}
	entity := MapTableEntity(m)

	c.Assert(cli.InsertEntity(ctx, tbl, entity), chk.IsNil)
	_, err := cli.QueryEntity(ctx, tbl, fmt.Sprintf("%s", m["PartitionKey"]), fmt.Sprintf("%s", m["RowKey"]))
	c.Assert(err, chk.IsNil)
}

func (s *StorageTableSuite) TestInsertEntity_struct_QueryEntity(c *chk.C) {
	cli := getTableClient(c)
	ctx := context.Background()
	tbl := randTableName()
	c.Assert(cli.CreateTable(ctx, CreateTableParameters{TableName: tbl}), chk.IsNil)
	defer cli.DeleteTable(ctx, tbl)

	type S struct {
		PartitionKey string
		RowKey       string
		GUIDVal      string `odata.type:"Edm.Guid"`
		BoolVal      bool   `odata.type:"Edm.Boolean"`
		Int32Val     int
		Int64Val     string `odata.type:"Edm.Int64"`
		TimeVal      string `odata.type:"Edm.DateTime"`
	}

	v := S{
		PartitionKey: randString(5) + "-" + randString(5),
		RowKey:       randString(10),
		GUIDVal:      "c9da6455-213d-42c9-9a79-3e9149a57833",
		BoolVal:      true,
		Int32Val:     42,
		Int64Val:     "9223372036854775807",
		TimeVal:      "2013-08-22T01:12:06.2608595Z",
	}
	entity := StructTableEntity{v}

	c.Assert(cli.InsertEntity(ctx, tbl, entity), chk.IsNil)
	_, err := cli.QueryEntity(ctx, tbl, v.PartitionKey, v.RowKey)
	c.Assert(err, chk.IsNil)
}
