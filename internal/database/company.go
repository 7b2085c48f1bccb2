package database

// Sample company data loaded by SeedSampleData.
var (
	sampleDepartments = [][]any{
		{1, "Engineering", "San Francisco", 2000000.00},
		{2, "Marketing", "New York", 800000.00},
		{3, "Sales", "Chicago", 1200000.00},
		{4, "HR", "Austin", 500000.00},
		{5, "Finance", "Boston", 600000.00},
	}

	sampleEmployees = [][]any{
		{1, "John", "Smith", "john.smith@company.com", "2020-01-15", 95000.00, 1, nil},
		{2, "Sarah", "Johnson", "sarah.johnson@company.com", "2019-03-22", 87000.00, 1, 1},
		{3, "Mike", "Brown", "mike.brown@company.com", "2021-06-10", 72000.00, 1, 1},
		{4, "Emily", "Davis", "emily.davis@company.com", "2020-09-05", 68000.00, 2, nil},
		{5, "David", "Wilson", "david.wilson@company.com", "2018-11-30", 78000.00, 2, 4},
		{6, "Lisa", "Anderson", "lisa.anderson@company.com", "2022-02-14", 85000.00, 3, nil},
		{7, "Tom", "Taylor", "tom.taylor@company.com", "2021-08-20", 65000.00, 3, 6},
		{8, "Anna", "Martinez", "anna.martinez@company.com", "2020-04-12", 62000.00, 4, nil},
		{9, "Chris", "Garcia", "chris.garcia@company.com", "2019-07-08", 89000.00, 5, nil},
		{10, "Jessica", "Lee", "jessica.lee@company.com", "2021-12-03", 71000.00, 1, 1},
	}
)

const (
	upsertDepartment = `
		INSERT INTO departments (department_id, department_name, location, budget)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(department_id) DO UPDATE SET
			department_name = excluded.department_name,
			location = excluded.location,
			budget = excluded.budget
	`

	upsertEmployee = `
		INSERT INTO employees (employee_id, first_name, last_name, email, hire_date, salary, department_id, manager_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			hire_date = excluded.hire_date,
			salary = excluded.salary,
			department_id = excluded.department_id,
			manager_id = excluded.manager_id
	`

	dropDepartmentSummary = `DROP TABLE IF EXISTS department_summary`

	createDepartmentSummary = `
		CREATE TABLE department_summary AS
		SELECT
			d.department_name AS department_name,
			ROUND(AVG(e.salary), 2) AS avg_salary,
			MIN(e.salary) AS min_salary,
			MAX(e.salary) AS max_salary,
			COUNT(e.employee_id) AS employee_count
		FROM employees e
		JOIN departments d ON e.department_id = d.department_id
		GROUP BY d.department_id, d.department_name
		ORDER BY d.department_name
	`

	selectDepartmentSummary = `SELECT * FROM department_summary ORDER BY department_name`
)

// SampleDepartmentCount and SampleEmployeeCount are the row counts written
// by SeedSampleData.
var (
	SampleDepartmentCount = len(sampleDepartments)
	SampleEmployeeCount   = len(sampleEmployees)
)

// SeedSampleData writes the sample departments and employees in a single
// transaction. Existing rows with the same ids are updated in place, so
// seeding twice is harmless.
func (m *Manager) SeedSampleData() error {
	_, err := m.ExecuteTransaction([]Operation{
		Batch(upsertDepartment, sampleDepartments...),
		Batch(upsertEmployee, sampleEmployees...),
	})
	return err
}

// RefreshDepartmentSummary rebuilds the department_summary table from the
// current employees and returns its rows.
func (m *Manager) RefreshDepartmentSummary() (Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		return Rows{}, err
	}

	if err := m.executeLocked([]Operation{
		Exec(dropDepartmentSummary),
		Exec(createDepartmentSummary),
	}); err != nil {
		m.log.Error().Err(err).Msg("Failed to rebuild department summary")
		return Rows{}, err
	}

	rows, err := m.queryLocked(selectDepartmentSummary)
	if err != nil {
		return Rows{}, &QueryError{Statement: selectDepartmentSummary, Err: err}
	}

	m.log.Info().Int("departments", len(rows)).Msg("Department summary rebuilt")
	return rows, nil
}
